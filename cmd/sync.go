package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"directory-sync/core/reconcile"

	"github.com/spf13/cobra"
)

// syncCmd groups the one-shot sync commands.
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run and inspect directory synchronization",
	Long: `Runs synchronization passes and manages pending conflicts without starting the server.
State (configuration, cache and pending conflicts) is restored from and saved to the configured store.`,
}

// syncRunCmd runs one pass.
var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one synchronization pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			result, err := rt.service.Run(ctx)
			if err != nil {
				return fmt.Errorf("sync pass failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		})
	},
}

// syncStatusCmd prints status and metrics.
var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"status":  rt.engine.Status(),
				"metrics": rt.engine.Metrics(),
			})
		})
	},
}

// syncConflictsCmd lists pending conflicts.
var syncConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List conflicts awaiting a manual decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			return writeJSON(cmd.OutOrStdout(), rt.engine.PendingConflicts())
		})
	},
}

// syncResolveCmd applies a manual decision.
var syncResolveCmd = &cobra.Command{
	Use:   "resolve <key>",
	Short: "Resolve a pending conflict",
	Long: `Applies a manual decision to a pending conflict.

Field mismatches take one --field per field: --field department=keep_directory,
--field email=keep_mirror or --field title=custom together with --value title=Manager.
Missing records take --action create, deactivate or skip.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fields, _ := cmd.Flags().GetStringArray("field")
		values, _ := cmd.Flags().GetStringArray("value")
		action, _ := cmd.Flags().GetString("action")

		decision, err := parseDecision(fields, values, action)
		if err != nil {
			return err
		}

		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			res, err := rt.engine.ResolveConflict(ctx, args[0], decision)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		})
	},
}

// syncClearCmd drops a pending conflict.
var syncClearCmd = &cobra.Command{
	Use:   "clear <key>",
	Short: "Drop a pending conflict without applying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			return rt.engine.ClearConflict(args[0])
		})
	},
}

// syncAuditCmd exports or archives the audit log.
var syncAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Export the audit log",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		archive, _ := cmd.Flags().GetBool("archive")

		return withRuntime(cmd.Context(), func(ctx context.Context, rt *runtime) error {
			if archive {
				name, err := rt.service.ArchiveAuditLog(ctx, format)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), name)
				return err
			}

			data, err := rt.engine.ExportAuditLog(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		})
	},
}

// withRuntime bootstraps the application, runs fn and persists state afterwards.
func withRuntime(ctx context.Context, fn func(ctx context.Context, rt *runtime) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := load(ctx)
	if err != nil {
		return err
	}

	runErr := fn(ctx, rt)
	if err := rt.close(ctx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

// parseDecision builds a manual decision from command flags.
func parseDecision(fields, values []string, action string) (reconcile.Decision, error) {
	var d reconcile.Decision
	if action != "" {
		if len(fields) > 0 {
			return d, fmt.Errorf("--action cannot be combined with --field")
		}
		d.Action = action
		return d, nil
	}
	if len(fields) == 0 {
		return d, fmt.Errorf("either --field or --action is required")
	}

	custom := make(map[string]string, len(values))
	for _, raw := range values {
		field, value, ok := strings.Cut(raw, "=")
		if !ok || field == "" {
			return d, fmt.Errorf("invalid --value %q, expected field=value", raw)
		}
		custom[field] = value
	}

	d.Fields = make(map[string]reconcile.FieldDecision, len(fields))
	for _, raw := range fields {
		field, choice, ok := strings.Cut(raw, "=")
		if !ok || field == "" || choice == "" {
			return d, fmt.Errorf("invalid --field %q, expected field=choice", raw)
		}
		fd := reconcile.FieldDecision{Choice: choice}
		if choice == reconcile.ChoiceCustom {
			value, ok := custom[field]
			if !ok {
				return d, fmt.Errorf("field %s uses custom but has no --value", field)
			}
			fd.Value = value
		}
		d.Fields[field] = fd
	}
	return d, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	syncResolveCmd.Flags().StringArray("field", nil, "field=choice (keep_directory, keep_mirror, custom)")
	syncResolveCmd.Flags().StringArray("value", nil, "field=value for custom choices")
	syncResolveCmd.Flags().String("action", "", "create, deactivate or skip for missing records")

	syncAuditCmd.Flags().String("format", reconcile.FormatJSON, "json, csv or yaml")
	syncAuditCmd.Flags().Bool("archive", false, "upload to object storage instead of printing")

	syncCmd.AddCommand(syncRunCmd, syncStatusCmd, syncConflictsCmd, syncResolveCmd, syncClearCmd, syncAuditCmd)
	RootCmd.AddCommand(syncCmd)
}
