package safety

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// CommandScreen structurally screens shell commands carried in tool-call
// arguments (e.g. a run_command tool's "command" arg). Parsing the command
// into an AST handles flag reordering, sudo wrapping, and long-form flags
// that regex screening misses.
type CommandScreen struct{}

// NewCommandScreen creates a command screen. A fresh shell parser is built
// per call since syntax.Parser is not safe for concurrent use.
func NewCommandScreen() *CommandScreen {
	return &CommandScreen{}
}

type cmdSegment struct {
	exe   string
	flags map[string]string
	args  []string
}

// Screen classifies a shell command. Checks run in a fixed order; the first
// hit decides. Commands that fail to parse fall back to whitespace/pipe
// splitting so screening still covers malformed input.
func (c *CommandScreen) Screen(command string) Result {
	if strings.TrimSpace(command) == "" {
		return safeResult("empty command", 0.7)
	}

	segments, operators := parseCommand(command)

	if seg, ok := findDestructiveRemove(segments); ok {
		return Result{
			Verdict:     VerdictUnsafe,
			Category:    ThreatHarmfulCommand,
			Reason:      "destructive remove targeting filesystem root: " + seg.exe,
			Confidence:  0.95,
			ShouldBlock: true,
		}
	}

	if reason, ok := findBlockDeviceWrite(segments); ok {
		return Result{
			Verdict:     VerdictUnsafe,
			Category:    ThreatHarmfulCommand,
			Reason:      reason,
			Confidence:  0.9,
			ShouldBlock: true,
		}
	}

	if ok := findPipeToShell(segments, operators); ok {
		return Result{
			Verdict:     VerdictUnsafe,
			Category:    ThreatHarmfulCommand,
			Reason:      "download piped directly into a shell interpreter",
			Confidence:  0.9,
			ShouldBlock: true,
		}
	}

	return safeResult("no structural threats detected", 0.7)
}

// parseCommand flattens the shell AST into pipeline-ordered segments and the
// operators between them.
func parseCommand(command string) ([]cmdSegment, []string) {
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return fallbackParse(command)
	}

	var segments []cmdSegment
	var operators []string
	for _, stmt := range file.Stmts {
		walkStmt(stmt, &segments, &operators)
	}
	return segments, operators
}

func walkStmt(stmt *syntax.Stmt, segments *[]cmdSegment, operators *[]string) {
	if stmt == nil || stmt.Cmd == nil {
		return
	}

	switch cmd := stmt.Cmd.(type) {
	case *syntax.CallExpr:
		words := make([]string, 0, len(cmd.Args))
		for _, w := range cmd.Args {
			words = append(words, wordToString(w))
		}
		if len(words) > 0 {
			*segments = append(*segments, wordsToSegment(words))
		}

	case *syntax.BinaryCmd:
		walkStmt(cmd.X, segments, operators)
		switch cmd.Op {
		case syntax.Pipe, syntax.PipeAll:
			*operators = append(*operators, "|")
		case syntax.AndStmt:
			*operators = append(*operators, "&&")
		case syntax.OrStmt:
			*operators = append(*operators, "||")
		default:
			*operators = append(*operators, cmd.Op.String())
		}
		walkStmt(cmd.Y, segments, operators)

	case *syntax.Subshell:
		for _, s := range cmd.Stmts {
			walkStmt(s, segments, operators)
		}

	case *syntax.Block:
		for _, s := range cmd.Stmts {
			walkStmt(s, segments, operators)
		}
	}
}

func wordToString(w *syntax.Word) string {
	var sb strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if lit, ok := inner.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		}
	}
	return sb.String()
}

// wordsToSegment splits a call's words into executable, normalized flags,
// and positional args. sudo is treated as transparent.
func wordsToSegment(words []string) cmdSegment {
	seg := cmdSegment{flags: make(map[string]string)}
	seg.exe = words[0]
	remaining := words[1:]

	if seg.exe == "sudo" {
		for len(remaining) > 0 && strings.HasPrefix(remaining[0], "-") {
			remaining = remaining[1:]
		}
		if len(remaining) > 0 {
			seg.exe = remaining[0]
			remaining = remaining[1:]
		}
	}

	for _, w := range remaining {
		switch {
		case strings.HasPrefix(w, "--") && len(w) > 2:
			flag := w[2:]
			if eq := strings.Index(flag, "="); eq >= 0 {
				seg.flags[flag[:eq]] = flag[eq+1:]
			} else {
				seg.flags[flag] = ""
			}
		case strings.HasPrefix(w, "-") && len(w) > 1:
			for _, ch := range w[1:] {
				seg.flags[string(ch)] = ""
			}
		default:
			seg.args = append(seg.args, w)
		}
	}
	return seg
}

func fallbackParse(command string) ([]cmdSegment, []string) {
	var segments []cmdSegment
	var operators []string
	parts := strings.Split(command, "|")
	for i, part := range parts {
		words := strings.Fields(strings.TrimSpace(part))
		if len(words) == 0 {
			continue
		}
		segments = append(segments, wordsToSegment(words))
		if i < len(parts)-1 {
			operators = append(operators, "|")
		}
	}
	return segments, operators
}

func findDestructiveRemove(segments []cmdSegment) (cmdSegment, bool) {
	for _, seg := range segments {
		if seg.exe != "rm" {
			continue
		}
		recursive := hasAnyFlag(seg.flags, "r", "R", "recursive")
		force := hasAnyFlag(seg.flags, "f", "force")
		if !recursive || !force {
			continue
		}
		for _, arg := range seg.args {
			if arg == "/" || arg == "/*" || strings.HasPrefix(arg, "/ ") {
				return seg, true
			}
		}
	}
	return cmdSegment{}, false
}

func findBlockDeviceWrite(segments []cmdSegment) (string, bool) {
	for _, seg := range segments {
		if strings.HasPrefix(seg.exe, "mkfs") {
			return "filesystem format command: " + seg.exe, true
		}
		if seg.exe == "dd" {
			for _, arg := range seg.args {
				if strings.HasPrefix(arg, "of=/dev/") {
					return "raw write to block device: " + arg, true
				}
			}
		}
	}
	return "", false
}

var downloaders = map[string]bool{"curl": true, "wget": true}
var shells = map[string]bool{"sh": true, "bash": true, "zsh": true, "dash": true, "ksh": true}

// findPipeToShell detects a downloader whose output feeds a shell
// interpreter through a pipe operator.
func findPipeToShell(segments []cmdSegment, operators []string) bool {
	for i := 0; i+1 < len(segments) && i < len(operators); i++ {
		if operators[i] != "|" {
			continue
		}
		if downloaders[segments[i].exe] && shells[segments[i+1].exe] {
			return true
		}
	}
	return false
}

func hasAnyFlag(flags map[string]string, names ...string) bool {
	for _, n := range names {
		if _, ok := flags[n]; ok {
			return true
		}
	}
	return false
}
