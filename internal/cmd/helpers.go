package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/jra3/agentmail/internal/apierr"
	"github.com/spf13/cobra"
)

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// withApp loads config, wires an app, runs fn, and always closes the
// underlying store, translating a structured apierr.Error into a plain CLI
// failure message (the tool-surface JSON shape the RPC transport would use
// is out of scope here per spec §1).
func withApp(fn func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		err = fn(cmd, args, a)
		var apiErr *apierr.Error
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%s: %s", apiErr.Kind, apiErr.Message)
		}
		return err
	}
}
