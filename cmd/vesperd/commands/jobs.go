package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/solenne/vesper/api"
	"github.com/solenne/vesper/logger"
	"github.com/solenne/vesper/sched"
)

// JobsCmd groups the job management subcommands
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled jobs",
	Long: `Manage scheduled jobs.

Subcommands:
  schedule - Create a job from a schedule phrase
  list     - List jobs, optionally filtered by status
  status   - Show one job by ID or name
  cancel   - Cancel pending jobs by ID or name
  run      - Execute a job immediately, outside its schedule
  history  - Show execution history`,
}

var (
	scheduleName   string
	schedulePhrase string
	scheduleAction string
	scheduleParams string

	listStatus string
	listLimit  int

	statusName string

	cancelName string

	runName string

	historyJobID string
	historyLimit int
)

func init() {
	scheduleCmd.Flags().StringVar(&scheduleName, "name", "", "job name (required)")
	scheduleCmd.Flags().StringVar(&schedulePhrase, "schedule", "", `schedule phrase, e.g. "in 5 minutes", "daily at 09:00" (required)`)
	scheduleCmd.Flags().StringVar(&scheduleAction, "action", "", "action to execute (required)")
	scheduleCmd.Flags().StringVar(&scheduleParams, "params", "", "action parameters as JSON")
	scheduleCmd.MarkFlagRequired("name")
	scheduleCmd.MarkFlagRequired("schedule")
	scheduleCmd.MarkFlagRequired("action")

	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (pending, running, completed, failed, cancelled)")
	listCmd.Flags().IntVar(&listLimit, "limit", 100, "maximum jobs to show")

	statusCmd.Flags().StringVar(&statusName, "name", "", "match by name instead of ID")

	cancelCmd.Flags().StringVar(&cancelName, "name", "", "cancel all pending jobs whose name contains this")

	runCmd.Flags().StringVar(&runName, "name", "", "match by name instead of ID")

	historyCmd.Flags().StringVar(&historyJobID, "job", "", "limit to one job ID")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries to show")

	JobsCmd.AddCommand(scheduleCmd)
	JobsCmd.AddCommand(listCmd)
	JobsCmd.AddCommand(statusCmd)
	JobsCmd.AddCommand(cancelCmd)
	JobsCmd.AddCommand(runCmd)
	JobsCmd.AddCommand(historyCmd)
}

// withService runs fn against a fully wired API service, then tears down
func withService(cmd *cobra.Command, fn func(*api.Service) error) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer logger.Cleanup()
	return fn(rt.service)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Create a job from a schedule phrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.Service) error {
			var params json.RawMessage
			if scheduleParams != "" {
				params = json.RawMessage(scheduleParams)
			}
			resp, err := svc.Schedule(api.ScheduleRequest{
				Name:     scheduleName,
				Schedule: schedulePhrase,
				Action:   scheduleAction,
				Params:   params,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Scheduled %s job %s\n", resp.ScheduleType, resp.JobID)
			fmt.Printf("Next run: %s\n", resp.NextRun.Local().Format(time.RFC1123))
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.Service) error {
			jobs, err := svc.List(listStatus, listLimit)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Println("No jobs")
				return nil
			}
			for _, job := range jobs {
				fmt.Println(formatJobLine(job))
			}
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Show one job by ID or name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.Service) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			job, err := svc.JobStatus(id, statusName)
			if err != nil {
				return err
			}
			printJob(job)
			return nil
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel pending jobs by ID or name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.Service) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			resp, err := svc.Cancel(api.CancelRequest{JobID: id, NamePattern: cancelName})
			if err != nil {
				return err
			}
			switch resp.CancelledCount {
			case 0:
				fmt.Println("No pending jobs matched")
			case 1:
				fmt.Println("Cancelled 1 job")
			default:
				fmt.Printf("Cancelled %d jobs\n", resp.CancelledCount)
			}
			return nil
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run [job-id]",
	Short: "Execute a job immediately, outside its schedule",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.Service) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			resp, err := svc.RunNow(cmd.Context(), api.RunNowRequest{JobID: id, NamePattern: runName})
			if err != nil {
				return err
			}
			outcome := "OK"
			if !resp.Success {
				outcome = "FAILED"
			}
			fmt.Printf("Job %s %s in %dms\n", resp.JobID, outcome, resp.DurationMs)
			if resp.Result != "" {
				fmt.Println(resp.Result)
			}
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show execution history, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(svc *api.Service) error {
			entries, err := svc.History(api.HistoryRequest{JobID: historyJobID, Limit: historyLimit})
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No history")
				return nil
			}
			for _, e := range entries {
				result := e.Result
				if i := strings.IndexByte(result, '\n'); i >= 0 {
					result = result[:i] + " ..."
				}
				fmt.Printf("%s  %-9s  %5dms  job=%s  %s\n",
					e.RunAt.Local().Format("2006-01-02 15:04:05"),
					e.Status, e.DurationMs, e.JobID, result)
			}
			return nil
		})
	},
}

func formatJobLine(job *sched.Job) string {
	next := "-"
	if job.NextRunAt != nil {
		next = job.NextRunAt.Local().Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%s  %-9s  %-9s  next=%-16s  %s (%s)",
		job.ID, job.Status, job.ScheduleType, next, job.Name, job.Action)
}

func printJob(job *sched.Job) {
	fmt.Printf("ID:        %s\n", job.ID)
	fmt.Printf("Name:      %s\n", job.Name)
	fmt.Printf("Status:    %s\n", job.Status)
	fmt.Printf("Type:      %s\n", job.ScheduleType)
	if job.RecurrenceRule != "" {
		fmt.Printf("Rule:      %s\n", job.RecurrenceRule)
	}
	fmt.Printf("Action:    %s\n", job.Action)
	if len(job.ActionParams) > 0 && string(job.ActionParams) != "{}" {
		fmt.Printf("Params:    %s\n", string(job.ActionParams))
	}
	if job.NextRunAt != nil {
		fmt.Printf("Next run:  %s\n", job.NextRunAt.Local().Format(time.RFC1123))
	}
	if job.LastRunAt != nil {
		fmt.Printf("Last run:  %s\n", job.LastRunAt.Local().Format(time.RFC1123))
	}
	if job.LastResult != "" {
		fmt.Printf("Last result:\n%s\n", job.LastResult)
	}
	fmt.Printf("Created:   %s\n", job.CreatedAt.Local().Format(time.RFC1123))
}
