package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oversightlab/sysguard/internal/audit"

	"github.com/spf13/cobra"
)

var (
	logFilterDecision string
	logFilterStage    string
	logFilterSession  string
	logLast           int
	logSummary        bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit log",
	Long: `View the Sysguard audit log with filtering and summary options.

Examples:
  sysguard log                        # Show all entries
  sysguard log --last 20              # Show last 20 entries
  sysguard log --decision block       # Show only blocked requests
  sysguard log --stage tool           # Show only tool-call decisions
  sysguard log --session <id>         # Show one session
  sysguard log --summary              # Show summary stats`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterDecision, "decision", "", "Filter by decision (allow, block, throttle, warn, deny)")
	logCmd.Flags().StringVar(&logFilterStage, "stage", "", "Filter by stage (input, output, tool, rate)")
	logCmd.Flags().StringVar(&logFilterSession, "session", "", "Filter by session id")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := logPath
	if path == "" {
		path, err = cfg.LogPath()
		if err != nil {
			return err
		}
	}

	events, err := readAuditLog(path)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	if len(events) == 0 {
		fmt.Println("No audit log entries found.")
		return nil
	}

	filtered := filterEvents(events)

	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(events)
		return nil
	}

	printEvents(filtered)
	return nil
}

func readAuditLog(path string) ([]audit.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var events []audit.Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event audit.Event
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue // skip malformed lines
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}

func filterEvents(events []audit.Event) []audit.Event {
	if logFilterDecision == "" && logFilterStage == "" && logFilterSession == "" {
		return events
	}

	var filtered []audit.Event
	for _, e := range events {
		if logFilterDecision != "" && !strings.EqualFold(e.Decision, logFilterDecision) {
			continue
		}
		if logFilterStage != "" && !strings.EqualFold(e.Stage, logFilterStage) {
			continue
		}
		if logFilterSession != "" && e.SessionID != logFilterSession {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func printEvents(events []audit.Event) {
	for _, e := range events {
		ts := formatTimestamp(e.Timestamp)
		icon := decisionIcon(e.Decision)

		fmt.Printf("%s %s [%s] %s\n", icon, ts, e.Stage, strings.ToUpper(e.Decision))

		if e.Category != "" && e.Category != "none" {
			fmt.Printf("     Category: %s\n", e.Category)
		}
		if e.Reason != "" {
			fmt.Printf("     Reason:   %s\n", e.Reason)
		}
		if e.Tool != "" {
			fmt.Printf("     Tool:     %s\n", e.Tool)
		}
		if e.Host != "" {
			fmt.Printf("     Host:     %s\n", e.Host)
		}
		if e.SessionID != "" {
			fmt.Printf("     Session:  %s\n", e.SessionID)
		}
		fmt.Println()
	}
}

func printSummary(all []audit.Event) {
	counts := map[string]int{}
	stages := map[string]int{}
	for _, e := range all {
		counts[e.Decision]++
		stages[e.Stage]++
	}

	fmt.Println("═══════════════════════════════════════════")
	fmt.Println("  Sysguard Audit Summary")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("  Total events:    %d\n", len(all))
	fmt.Printf("  allow:           %d\n", counts[audit.DecisionAllow])
	fmt.Printf("  block:           %d\n", counts[audit.DecisionBlock])
	fmt.Printf("  throttle:        %d\n", counts[audit.DecisionThrottle])
	fmt.Printf("  warn:            %d\n", counts[audit.DecisionWarn])
	fmt.Printf("  deny:            %d\n", counts[audit.DecisionDeny])
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("  input stage:     %d\n", stages[audit.StageInput])
	fmt.Printf("  output stage:    %d\n", stages[audit.StageOutput])
	fmt.Printf("  tool stage:      %d\n", stages[audit.StageTool])
	fmt.Printf("  rate stage:      %d\n", stages[audit.StageRate])

	if len(all) > 0 {
		fmt.Printf("  First event:     %s\n", formatTimestamp(all[0].Timestamp))
		fmt.Printf("  Last event:      %s\n", formatTimestamp(all[len(all)-1].Timestamp))
	}

	// Show the most recent blocks.
	var blocked []audit.Event
	for _, e := range all {
		if e.Decision == audit.DecisionBlock {
			blocked = append(blocked, e)
		}
	}
	if len(blocked) > 0 {
		fmt.Println()
		fmt.Println("  Recent blocks:")
		limit := len(blocked)
		if limit > 10 {
			limit = 10
		}
		for _, e := range blocked[len(blocked)-limit:] {
			fmt.Printf("    %s [%s] %s\n", formatTimestamp(e.Timestamp), e.Stage, e.Reason)
		}
	}

	fmt.Println()
}

func decisionIcon(decision string) string {
	switch decision {
	case audit.DecisionBlock, audit.DecisionDeny:
		return "\xf0\x9f\x9b\x91" // stop sign
	case audit.DecisionThrottle:
		return "\xe2\x8f\xb3" // hourglass
	case audit.DecisionWarn:
		return "\xe2\x9a\xa0" // warning
	case audit.DecisionAllow:
		return "\xe2\x9c\x85" // check mark
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
