package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/people-pager/pkg/source"
)

func newSeedCmd(v *viper.Viper) *cobra.Command {
	var (
		count int
		reset bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Append generated people to the Redis list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 0 {
				return fmt.Errorf("count must be >= 0, got %d", count)
			}
			s, err := loadSettings(v)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := connectRedis(ctx, s.RedisAddr)
			if err != nil {
				return err
			}
			defer client.Close()

			list := source.NewRedis(client, s.RedisKey, s.PageSize, logger)
			if reset {
				if err := list.Clear(ctx); err != nil {
					return err
				}
			}
			start, err := list.Len(ctx)
			if err != nil {
				return err
			}
			if err := list.Append(ctx, source.GeneratePeopleFrom(start, count)...); err != nil {
				return err
			}

			n, err := list.Len(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("appended", count).Int("total", n).Str("key", s.RedisKey).Msg("Seeded list")
			fmt.Fprintf(cmd.OutOrStdout(), "%s now holds %d records\n", s.RedisKey, n)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 100, "records to append")
	cmd.Flags().BoolVar(&reset, "reset", false, "delete the list first")

	return cmd
}
