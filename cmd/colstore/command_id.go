package main

import (
	"fmt"
	"reflect"

	"github.com/likearthian/colstore"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newIDCmd(a *app) *cobra.Command {
	var (
		policy string
		count  int
	)

	cmd := &cobra.Command{
		Use:   "id",
		Short: "Generate row keys with the configured key policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.cfg.KeyPolicy
			if policy != "" {
				var err error
				if p, err = colstore.ParseKeyPolicy(policy); err != nil {
					return err
				}
			}
			if p == "" {
				p = colstore.DefaultKeyPolicy
			}

			keys, err := a.cfg.KeyGenerators()
			if err != nil {
				return err
			}

			gen, ok := keys.Generator(p)
			if !ok {
				return &colstore.UnknownKeyPolicyError{Policy: p}
			}

			t := reflect.TypeOf("")
			if p == colstore.KeyAssignID {
				t = reflect.TypeOf(int64(0))
			}

			for i := 0; i < count; i++ {
				v, err := gen.Generate(t)
				if err != nil {
					return err
				}
				if !v.IsValid() {
					return errors.Errorf("policy %s does not generate keys", p)
				}

				fmt.Fprintln(cmd.OutOrStdout(), v.Interface())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "policy", "", "key policy, defaults to the configured one")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of keys")
	return cmd
}
