package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unkn0wn-root/cachepool"
)

var errMiss = errors.New("key not found")

// run opens the pool around fn.
func run(g *globals, fn func(cmd *cobra.Command, p cachepool.Pool[string], args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		p, closeFn, err := g.open(cmd.Context())
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(cmd, p, args)
	}
}

func report(cmd *cobra.Command, op string, ok bool) error {
	if !ok {
		return fmt.Errorf("%s failed", op)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}

func newGetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: run(g, func(cmd *cobra.Command, p cachepool.Pool[string], args []string) error {
			v, ok, err := p.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return errMiss
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		}),
	}
}

func newSetCmd(g *globals) *cobra.Command {
	var (
		ttl  time.Duration
		tags []string
	)
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE under KEY",
		Long: `Store VALUE under KEY.

--ttl 0 stores the value without expiry; omit it to use the configured default.`,
		Args: cobra.ExactArgs(2),
		RunE: run(g, func(cmd *cobra.Command, p cachepool.Pool[string], args []string) error {
			t := cachepool.DefaultTTL
			if cmd.Flags().Changed("ttl") {
				t = ttl
			}
			ok, err := p.Set(cmd.Context(), args[0], args[1], t, tags...)
			if err != nil {
				return err
			}
			return report(cmd, "set", ok)
		}),
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "lifetime of the value")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag to attach (repeatable; requires tagging: true)")
	return cmd
}

func newDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY...",
		Short: "Delete keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(g, func(cmd *cobra.Command, p cachepool.Pool[string], args []string) error {
			ok, err := p.DeleteMultiple(cmd.Context(), args)
			if err != nil {
				return err
			}
			return report(cmd, "delete", ok)
		}),
	}
}

func newTagsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tags KEY",
		Short: "List the tags of KEY",
		Args:  cobra.ExactArgs(1),
		RunE: run(g, func(cmd *cobra.Command, p cachepool.Pool[string], args []string) error {
			tags, err := p.Tags(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(tags, "\n"))
			return nil
		}),
	}
}

func newInvalidateTagCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate-tag TAG...",
		Short: "Delete every key carrying any of the tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: run(g, func(cmd *cobra.Command, p cachepool.Pool[string], args []string) error {
			ok, err := p.InvalidateTags(cmd.Context(), args...)
			if err != nil {
				return err
			}
			return report(cmd, "invalidate-tag", ok)
		}),
	}
}

func newInvalidateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Invalidate the configured namespace",
		Args:  cobra.NoArgs,
		RunE: run(g, func(cmd *cobra.Command, p cachepool.Pool[string], _ []string) error {
			if p.Namespace() == "" {
				return errors.New("no namespace configured")
			}
			return report(cmd, "invalidate", p.Invalidate(cmd.Context()))
		}),
	}
}

func newPurgeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Remove expired records",
		Args:  cobra.NoArgs,
		RunE: run(g, func(cmd *cobra.Command, p cachepool.Pool[string], _ []string) error {
			return report(cmd, "purge", p.Purge(cmd.Context()))
		}),
	}
}

func newClearCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every record, all namespaces included",
		Args:  cobra.NoArgs,
		RunE: run(g, func(cmd *cobra.Command, p cachepool.Pool[string], _ []string) error {
			return report(cmd, "clear", p.Clear(cmd.Context()))
		}),
	}
}
