package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/amirbrooks/quicktask/internal/config"
	"github.com/amirbrooks/quicktask/internal/parse"
	"github.com/amirbrooks/quicktask/internal/store"
	"github.com/amirbrooks/quicktask/internal/tui"
	"github.com/amirbrooks/quicktask/internal/view"
)

func isKnownFormat(format string) bool {
	return view.IsTelegramFormat(format)
}

func newUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ui",
		Short: "Open the terminal UI",
		Args:  withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runUI(cmd.Context())
		},
	}
}

func (a *app) runUI(ctx context.Context) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	client, err := a.newAssist(st)
	if err != nil {
		return err
	}
	fb, _ := a.backend.(*store.FileBackend)
	a.log.Info("ui started", zap.String("root", a.gf.Root))
	return tui.Run(ctx, tui.Options{Store: st, Assist: client, Config: a.cfg, Logger: a.log}, fb)
}

func newAddCmd(a *app) *cobra.Command {
	var due, priority string
	cmd := &cobra.Command{
		Use:   "add <text...>",
		Short: "Add a task, reading due/time/priority from the text",
		Example: `  quicktask add Call John at 2pm urgent
  quicktask add "Draft release notes next week"`,
		Args: withUsage(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimSpace(strings.Join(args, " "))
			res := parse.Extract(raw)
			title := res.Title
			if title == "" {
				title = raw
			}
			if strings.TrimSpace(due) != "" {
				res.Due = strings.TrimSpace(due)
			}
			if priority != "" {
				p, ok := store.ParsePriority(priority)
				if !ok {
					return usagef("unknown priority %q (use low|medium|high)", priority)
				}
				res.Priority = p
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			task, err := st.AddTask(title, res.Due, res.Priority)
			if err != nil {
				return err
			}
			a.log.Info("task added", zap.String("task_id", task.ID))
			return a.emit("task", map[string]any{"task": task}, func() error {
				line := fmt.Sprintf("%s [%s] %s", task.ID, task.Priority, task.Title)
				if task.Due != "" {
					line += " (" + task.Due + ")"
				}
				fmt.Fprintln(a.out, line)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "Due label, overriding anything parsed from the text")
	cmd.Flags().StringVar(&priority, "priority", "", "Priority (low|medium|high), overriding the text")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var viewName string
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List the focus, all or archive view",
		Args:    withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := view.ParseMode(viewName)
			if err != nil {
				return &usageError{err: err}
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			return a.printView(view.Apply(st.Tasks(), mode))
		},
	}
	cmd.Flags().StringVar(&viewName, "view", "focus", "View (focus|all|archive)")
	return cmd
}

func (a *app) printView(v view.View) error {
	payload := map[string]any{"view": v.Mode, "tasks": v.Tasks, "backlog_start": v.BacklogStart}
	return a.emit("tasks", payload, func() error {
		if view.IsTelegramFormat(a.gf.Format) {
			fmt.Fprintln(a.out, view.RenderTelegram(v))
			return nil
		}
		return view.WriteTable(a.out, v, a.gf.Plain)
	})
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id-or-prefix>",
		Short: "Show a task with its subtasks",
		Args:  withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			task, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			return a.emit("task", map[string]any{"task": task}, func() error {
				fmt.Fprint(a.out, task.RenderHuman())
				return nil
			})
		},
	}
}

func newDoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id-or-prefix>",
		Short: "Toggle completion; completed tasks are archived on exit",
		Args:  withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			task, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			task, err = st.ToggleTask(task.ID)
			if err != nil {
				return err
			}
			return a.emit("task", map[string]any{"task": task}, func() error {
				if task.Done() {
					a.info("Done %s", task.ID)
				} else {
					a.info("Reopened %s", task.ID)
				}
				return nil
			})
		},
	}
}

func newArchiveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id-or-prefix>",
		Short: "Archive a task now",
		Args:  withUsage(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			task, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			task, err = st.ArchiveTask(task.ID)
			if err != nil {
				return err
			}
			return a.emit("task", map[string]any{"task": task}, func() error {
				a.info("Archived %s", task.ID)
				return nil
			})
		},
	}
}

func newSubtaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtask",
		Short: "Work with subtasks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "toggle <task> <subtask-id|number>",
		Short: "Toggle a subtask between todo and done",
		Args:  withUsage(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			task, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			subID, err := resolveSubtask(task, args[1])
			if err != nil {
				return err
			}
			sub, err := st.ToggleSubtask(task.ID, subID)
			if err != nil {
				return err
			}
			return a.emit("subtask", map[string]any{"task_id": task.ID, "subtask": sub}, func() error {
				a.info("Subtask %s -> %s", sub.ID, sub.Status)
				return nil
			})
		},
	})
	return cmd
}

// resolveSubtask accepts a 1-based position, an exact id or a unique id prefix.
func resolveSubtask(task store.Task, selector string) (string, error) {
	selector = strings.TrimSpace(selector)
	if n, err := strconv.Atoi(selector); err == nil {
		if n < 1 || n > len(task.Subtasks) {
			return "", fmt.Errorf("%w: subtask %d of %s", store.ErrNotFound, n, task.ID)
		}
		return task.Subtasks[n-1].ID, nil
	}
	var matches []string
	for _, st := range task.Subtasks {
		if st.ID == selector {
			return st.ID, nil
		}
		if strings.HasPrefix(strings.ToUpper(st.ID), strings.ToUpper(selector)) {
			matches = append(matches, st.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: subtask %q", store.ErrNotFound, selector)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w: subtask prefix %q matches %d subtasks", store.ErrConflict, selector, len(matches))
	}
}

func newMoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "move <id-or-prefix> <up|down>",
		Aliases: []string{"mv"},
		Short:   "Move a task one place up or down",
		Args:    withUsage(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var delta int
			switch strings.ToLower(args[1]) {
			case "up":
				delta = -1
			case "down":
				delta = 1
			default:
				return usagef("direction must be up or down, got %q", args[1])
			}
			st, err := a.openStore()
			if err != nil {
				return err
			}
			task, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			pos, err := st.Move(task.ID, delta)
			if err != nil {
				return err
			}
			return a.emit("move", map[string]any{"task_id": task.ID, "position": pos}, func() error {
				a.info("Moved %s to position %d", task.ID, pos+1)
				return nil
			})
		},
	}
}

func newBreakdownCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "breakdown <id-or-prefix>...",
		Short: "Ask the model for three subtasks of each task",
		Args:  withUsage(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			tasks := make([]store.Task, 0, len(args))
			for _, sel := range args {
				t, err := st.Resolve(sel)
				if err != nil {
					return err
				}
				tasks = append(tasks, t)
			}
			client, err := a.newAssist(st)
			if err != nil {
				return err
			}
			outcomes, runErr := client.BreakDownAll(cmd.Context(), tasks)

			results := make([]map[string]any, 0, len(outcomes))
			for _, o := range outcomes {
				r := map[string]any{"task_id": o.TaskID, "subtasks": o.Subtasks}
				if o.Err != nil {
					r["error"] = o.Err.Error()
				}
				results = append(results, r)
			}
			emitErr := a.emit("breakdown", map[string]any{"results": results}, func() error {
				for _, o := range outcomes {
					if o.Err != nil {
						fmt.Fprintf(a.errOut, "%s: %v\n", o.TaskID, o.Err)
						continue
					}
					fmt.Fprintf(a.out, "%s\n", o.TaskID)
					for _, sub := range o.Subtasks {
						fmt.Fprintf(a.out, "  + %s  (%s)\n", sub.Title, sub.ID)
					}
				}
				return nil
			})
			if runErr != nil {
				return runErr
			}
			return emitErr
		},
	}
}

func newSortCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sort",
		Short: "Reorder tasks by urgency using the model",
		Args:  withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			client, err := a.newAssist(st)
			if err != nil {
				return err
			}
			if err := client.SmartSort(cmd.Context()); err != nil {
				return err
			}
			return a.printView(view.Apply(st.Tasks(), view.ModeAll))
		},
	}
}

type parseResult struct {
	Title    string      `json:"title"`
	Due      string      `json:"due"`
	Priority string      `json:"priority"`
	Tags     []parse.Tag `json:"tags"`
}

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <text...>",
		Short: "Show what would be extracted from the text",
		Args:  withUsage(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			res := parse.Extract(raw)
			out := parseResult{
				Title:    res.Title,
				Due:      res.Due,
				Priority: string(res.Priority),
				Tags:     parse.Tags(raw),
			}
			return a.emit("parse", out, func() error {
				fmt.Fprintf(a.out, "Title: %s\n", out.Title)
				fmt.Fprintf(a.out, "Due: %s\n", dashIfEmpty(out.Due))
				fmt.Fprintf(a.out, "Priority: %s\n", out.Priority)
				labels := make([]string, 0, len(out.Tags))
				for _, t := range out.Tags {
					labels = append(labels, t.Label)
				}
				fmt.Fprintf(a.out, "Tags: %s\n", dashIfEmpty(strings.Join(labels, ", ")))
				return nil
			})
		},
	}
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func newKeyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Show or set the Gemini API key",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the masked key and where it comes from",
			Args:  withUsage(cobra.NoArgs),
			RunE: func(cmd *cobra.Command, args []string) error {
				key := a.cfg.APIKey()
				source := a.cfg.KeySource()
				return a.emit("key", map[string]any{"set": key != "", "source": source}, func() error {
					if source == "" {
						fmt.Fprintf(a.out, "API key: %s\n", config.MaskKey(key))
						return nil
					}
					fmt.Fprintf(a.out, "API key: %s (from %s)\n", config.MaskKey(key), source)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "set <value>",
			Short: "Store the key in config.yaml",
			Args:  withUsage(cobra.ExactArgs(1)),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := a.cfg.SetAPIKey(args[0]); err != nil {
					return err
				}
				a.log.Info("api key updated")
				a.info("Saved API key to %s", a.cfg.Path())
				return nil
			},
		},
	)
	return cmd
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Config()
			if cfg.APIKey != "" {
				cfg.APIKey = config.MaskKey(cfg.APIKey)
			}
			return a.emit("config", map[string]any{"root": a.gf.Root, "config": cfg}, func() error {
				fmt.Fprintf(a.out, "# %s\n", a.cfg.Path())
				b, err := yaml.Marshal(&cfg)
				if err != nil {
					return err
				}
				_, err = a.out.Write(b)
				return err
			})
		},
	})
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var ndjson bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every task to a JSON or NDJSON file under <root>/exports",
		Args:  withUsage(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			tasks := st.Tasks()
			var path string
			if ndjson {
				items := make([]any, 0, len(tasks))
				for i := range tasks {
					items = append(items, tasks[i])
				}
				path, err = writeNDJSONExport(a.gf, "tasks", items)
			} else {
				path, err = writeJSONExport(a.gf, "tasks", map[string]any{"tasks": tasks})
			}
			if err != nil {
				return err
			}
			kind := "JSON"
			if ndjson {
				kind = "NDJSON"
			}
			a.info("Wrote %s to: %s", kind, path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ndjson, "ndjson", false, "One task per line")
	return cmd
}
