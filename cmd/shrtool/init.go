package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	shr "github.com/paultag/go-shr"
	"github.com/paultag/go-shr/internal/config"
)

var initCmdArgs struct {
	Path       string
	DataBytes  uint64
	Flags      []string
	MaxMsgs    uint64
	ConfigPath string
	RingName   string
	SaveConfig string
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a ring file",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := resolveInitRing()
		if err != nil {
			return err
		}
		bits, err := r.Bits()
		if err != nil {
			return err
		}

		var opts []shr.InitOption
		if bits&shr.FlagMaxMsgs != 0 {
			opts = append(opts, shr.WithMaxMessages(r.MaxMessages))
		}

		if err := shr.Init(r.Path, r.DataBytes, bits, opts...); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		fmt.Printf("created %s (%d data bytes, flags %v)\n", r.Path, r.DataBytes, initCmdArgs.Flags)

		if initCmdArgs.SaveConfig != "" {
			if err := saveResolvedRing(initCmdArgs.SaveConfig, r); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initCmdArgs.Path, "path", "", "ring file to create")
	initCmd.Flags().Uint64Var(&initCmdArgs.DataBytes, "data-bytes", 0, "data-area capacity in bytes")
	initCmd.Flags().StringSliceVar(&initCmdArgs.Flags, "flags", nil, "comma-separated init flags (keep_existing,drop,app_data,farm,max_msgs,sync,mlock)")
	initCmd.Flags().Uint64Var(&initCmdArgs.MaxMsgs, "max-msgs", 0, "index slot count (requires --flags max_msgs)")

	initCmd.Flags().StringVar(&initCmdArgs.ConfigPath, "config", "", "load ring parameters from a TOML config file instead")
	initCmd.Flags().StringVar(&initCmdArgs.RingName, "ring", "", "ring name within --config")
	initCmd.Flags().StringVar(&initCmdArgs.SaveConfig, "save-config", "", "record the resolved ring parameters into this TOML file for later --config use")
}

// saveResolvedRing merges r under initCmdArgs.RingName (or the ring's file
// name, if that wasn't given) into the TOML config at path and writes it
// back atomically, so a concurrent reader of path never observes a
// half-written provisioning file.
func saveResolvedRing(path string, r config.Ring) error {
	name := initCmdArgs.RingName
	if name == "" {
		name = filepath.Base(r.Path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = &config.Config{Rings: map[string]config.Ring{}}
	}
	if cfg.Rings == nil {
		cfg.Rings = map[string]config.Ring{}
	}
	cfg.Rings[name] = r

	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("init: save config: %w", err)
	}
	return nil
}

// resolveInitRing builds a config.Ring either from direct flags or, when
// --config is given, by name out of a provisioning file.
func resolveInitRing() (config.Ring, error) {
	if initCmdArgs.ConfigPath != "" {
		cfg, err := config.Load(initCmdArgs.ConfigPath)
		if err != nil {
			return config.Ring{}, err
		}
		r, ok := cfg.Rings[initCmdArgs.RingName]
		if !ok {
			return config.Ring{}, fmt.Errorf("init: ring %q not found in %s", initCmdArgs.RingName, initCmdArgs.ConfigPath)
		}
		return r, nil
	}

	if initCmdArgs.Path == "" || initCmdArgs.DataBytes == 0 {
		return config.Ring{}, fmt.Errorf("init: --path and --data-bytes are required without --config")
	}
	return config.Ring{
		Path:        initCmdArgs.Path,
		DataBytes:   initCmdArgs.DataBytes,
		Flags:       initCmdArgs.Flags,
		MaxMessages: initCmdArgs.MaxMsgs,
	}, nil
}
