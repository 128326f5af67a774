package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/qs3c/quota_relay/internal/database"
	"github.com/qs3c/quota_relay/internal/model"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/pkg/cron"
	"github.com/qs3c/quota_relay/internal/pkg/jwt"
	"github.com/qs3c/quota_relay/internal/pkg/pubsub"
	"github.com/qs3c/quota_relay/internal/pkg/queue"
)

const commandTimeout = 30 * time.Second

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

// withDeps 连接存储后执行 fn，结束时关闭连接
func withDeps(opts *rootOptions, fn func(ctx context.Context, d *deps) error) error {
	d, err := opts.connect()
	if err != nil {
		return err
	}
	defer d.close()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return fn(ctx, d)
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var hours int

	cmd := &cobra.Command{
		Use:   "token <user_id>",
		Short: "Issue an API token for the gateway or the admin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			if hours <= 0 {
				hours = opts.cfg.JWT.ExpireHours
			}

			token, err := jwt.GenerateToken(userID, opts.cfg.JWT.Secret, hours)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().IntVar(&hours, "hours", 0, "token lifetime in hours (default jwt.expire_hours)")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <user_id>",
		Short: "Show a user's quota and premium status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withDeps(opts, func(ctx context.Context, d *deps) error {
				info, err := d.quota.GetQuotaInfo(ctx, userID)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), info)
			})
		},
	}
}

func newGrantCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user_id> <days>",
		Short: "Grant premium directly, replacing any current entitlement",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			days, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid days %q", args[1])
			}
			return withDeps(opts, func(ctx context.Context, d *deps) error {
				res, err := d.router.Grant(ctx, opts.cfg.Bot.AdminUserID, userID, days)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), res)
			})
		},
	}
}

func newCommandsCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "commands <user_id>",
		Short: "List a user's recent counted commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			return withDeps(opts, func(ctx context.Context, d *deps) error {
				logs, err := d.accounts.RecentCommands(ctx, userID, limit)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), logs)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max entries")
	return cmd
}

func newPaymentCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Manage pending payment requests",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List pending requests, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(opts, func(ctx context.Context, d *deps) error {
				pending, err := d.payments.ListPending(ctx)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), pending)
			})
		},
	})

	for _, action := range []model.PaymentAction{model.ActionConfirm, model.ActionReject} {
		cmd.AddCommand(&cobra.Command{
			Use:   string(action) + " <request_id>",
			Short: fmt.Sprintf("%s a pending request as the configured admin", action),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDeps(opts, func(ctx context.Context, d *deps) error {
					res, err := d.router.Resolve(ctx, opts.cfg.Bot.AdminUserID, args[0], action)
					if err != nil {
						return err
					}
					return opts.print(cmd.OutOrStdout(), res)
				})
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "expire",
		Short: "Expire requests older than payment.request_ttl now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(opts, func(ctx context.Context, d *deps) error {
				res, err := d.router.ExpireStalePayments(ctx)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), res)
			})
		},
	})

	return cmd
}

func newPushCmd(opts *rootOptions) *cobra.Command {
	ev := dto.CommandEvent{}

	cmd := &cobra.Command{
		Use:   "push <text>",
		Short: "Enqueue a chat message as if the gateway had received it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ev.UserID <= 0 || ev.ChatID == 0 {
				return fmt.Errorf("--user and --chat are required")
			}
			ev.RawText = args[0]
			ev.Timestamp = time.Now().UTC()

			rdb, err := database.NewRedis(&opts.cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			q := queue.NewQueue(rdb, opts.cfg.Queue.EventQueue)
			if err := q.Push(cmd.Context(), queue.CommandEnvelope(&ev)); err != nil {
				return err
			}
			n, err := q.Length(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued, %d event(s) waiting\n", n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&ev.UserID, "user", 0, "sender user id")
	cmd.Flags().Int64Var(&ev.ChatID, "chat", 0, "chat id")
	cmd.Flags().StringVar(&ev.ChatType, "type", dto.ChatGroup, "chat type: private, group or supergroup")
	cmd.Flags().StringVar(&ev.DisplayName, "name", "", "sender display name")
	cmd.Flags().Int64Var(&ev.MessageID, "message", 0, "message id")
	return cmd
}

func newNoticesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "notices",
		Short: "Print outbound notices as they are published, until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rdb, err := database.NewRedis(&opts.cfg.Redis)
			if err != nil {
				return err
			}
			defer rdb.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			err = pubsub.NewSubscriber(rdb, opts.cfg.Queue.NoticeChannel).Subscribe(ctx, func(n *dto.Notice) {
				if err := opts.print(out, n); err != nil {
					opts.log.Warn().Err(err).Msg("failed to print notice")
				}
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func newSummaryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show yesterday's command count and current premium members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(opts, func(ctx context.Context, d *deps) error {
				svc, err := cron.NewService(nil, d.accountRepo, d.commandLogRepo, d.paymentRepo, d.clock, opts.cfg, opts.log)
				if err != nil {
					return err
				}
				summary, err := svc.SummaryNow(ctx)
				if err != nil {
					return err
				}
				return opts.print(cmd.OutOrStdout(), summary)
			})
		},
	}
}
