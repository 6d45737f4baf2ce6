package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vnykmshr/flowguard/pkg/config"
	"github.com/vnykmshr/flowguard/pkg/datasource"
	"github.com/vnykmshr/flowguard/pkg/flow"
)

type pushFlags struct {
	addr    string
	key     string
	channel string
	force   bool
}

func newPushCmd(log *logger.Logger) *cobra.Command {
	var flags pushFlags
	cmd := &cobra.Command{
		Use:   "push FILE",
		Short: "Store a rule document in Redis and notify subscribers",
		Long: `Validate a rule document, store it at the Redis rule key and publish it
on the update channel, where running Redis datasources pick it up.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := readRules(cmd, args[0])
			if err != nil {
				return err
			}
			if err := checkRules(cmd.OutOrStdout(), rules, true, log); err != nil && !flags.force {
				return err
			}

			s, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if flags.addr != "" {
				s.RedisAddr = flags.addr
			}
			if flags.key != "" {
				s.RedisKey = flags.key
			}
			if cmd.Flags().Changed("channel") {
				s.RedisChannel = flags.channel
			}
			return pushRules(cmd, s, rules, log)
		},
	}
	cmd.Flags().StringVar(&flags.addr, "addr", "", "redis address (default from FLOWGUARD_REDIS_ADDR)")
	cmd.Flags().StringVar(&flags.key, "key", "", "rule key (default from FLOWGUARD_REDIS_KEY)")
	cmd.Flags().StringVar(&flags.channel, "channel", "", "update channel, empty to skip notifying (default from FLOWGUARD_REDIS_CHANNEL)")
	cmd.Flags().BoolVar(&flags.force, "force", false, "push even if some rules are rejected")
	return cmd
}

func pushRules(cmd *cobra.Command, s config.Settings, rules []flow.Rule, log *logger.Logger) error {
	client := redis.NewClient(&redis.Options{
		Addr:     s.RedisAddr,
		Password: s.RedisPassword,
		DB:       s.RedisDB,
	})
	defer func() {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("failed to close redis client")
		}
	}()

	src, err := datasource.NewRedisSource(client, nopLoader{}, datasource.RedisConfig{
		Key:     s.RedisKey,
		Channel: s.RedisChannel,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	if err := src.Publish(cmd.Context(), rules); err != nil {
		return err
	}
	log.WithFields(logger.Fields{"key": s.RedisKey, "channel": s.RedisChannel}).Debug("rules pushed")
	fmt.Fprintf(cmd.OutOrStdout(), "pushed %d rules to %s\n", len(rules), s.RedisKey)
	return nil
}

// nopLoader satisfies datasource.RuleLoader for a publish-only source.
type nopLoader struct{}

func (nopLoader) LoadRules([]flow.Rule) (bool, error) {
	return false, nil
}
