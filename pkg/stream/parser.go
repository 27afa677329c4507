package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"crewgen/pkg/display"
)

// maxLineSize bounds a single stream line. Longer lines are dropped.
const maxLineSize = 1024 * 1024

// Parser consumes stream-json output, renders each event and collects the
// assistant text that becomes the call's output.
type Parser struct {
	p           *display.Printer
	logger      *zap.Logger
	output      strings.Builder
	result      string
	initialized bool
	midLine     bool
	toolNames   map[string]string

	Stats     *Stats       // Captured from the result event
	LastError string       // Most recent error event or failed result
	Dropped   int          // Malformed lines ignored
	Counts    map[Kind]int // Events seen per kind
}

// NewParser creates a parser rendering to p.
func NewParser(p *display.Printer, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		p:         p,
		logger:    logger,
		toolNames: make(map[string]string),
		Counts:    make(map[Kind]int),
	}
}

// Output returns the accumulated assistant text. When the stream carried no
// assistant messages, the final result text is used instead.
func (p *Parser) Output() string {
	if p.output.Len() > 0 {
		return p.output.String()
	}
	return p.result
}

// ProcessLine processes a single line from stream output. Malformed lines
// are dropped without output.
func (p *Parser) ProcessLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	events, err := Decode([]byte(line))
	if err != nil {
		p.Dropped++
		p.logger.Debug("dropping stream line", zap.Error(err), zap.Int("bytes", len(line)))
		return
	}
	for _, ev := range events {
		p.Handle(ev)
	}
}

// Handle renders one decoded event.
func (p *Parser) Handle(ev Event) {
	p.Counts[ev.Kind]++

	switch ev.Kind {
	case KindInit:
		p.handleInit(ev)
	case KindMessage:
		p.handleMessage(ev)
	case KindToolUse:
		p.handleToolUse(ev)
	case KindToolResult:
		p.handleToolResult(ev)
	case KindError:
		p.handleError(ev)
	case KindResult:
		p.handleResult(ev)
	default:
		p.logger.Debug("ignoring stream event", zap.String("type", ev.RawType))
	}
}

// breakLine ends a partially printed delta message.
func (p *Parser) breakLine() {
	if p.midLine {
		p.p.Println()
		p.midLine = false
	}
}

func (p *Parser) handleInit(ev Event) {
	if p.initialized {
		return
	}
	p.initialized = true
	label := "⚡ session initialized"
	if ev.Model != "" {
		label += " (" + ev.Model + ")"
	}
	p.p.Println(p.p.Dim(p.p.Cyan(label)))
}

func (p *Parser) handleMessage(ev Event) {
	// gemini echoes the prompt back as a user message
	if ev.Role == "user" || ev.Text == "" {
		return
	}

	if ev.Delta {
		p.output.WriteString(ev.Text)
		p.p.Printf("%s", p.p.White(ev.Text))
		p.midLine = !strings.HasSuffix(ev.Text, "\n")
		return
	}

	p.breakLine()
	if p.output.Len() > 0 && !strings.HasSuffix(p.output.String(), "\n") {
		p.output.WriteString("\n")
	}
	p.output.WriteString(ev.Text)
	p.p.Println(p.p.White(ev.Text))
}

func (p *Parser) handleToolUse(ev Event) {
	p.breakLine()
	if ev.ToolID != "" {
		p.toolNames[ev.ToolID] = ev.ToolName
	}

	icon, displayName := toolLabel(ev.ToolName)
	info := extractToolInfo(ev.ToolInput)
	if info != "" {
		p.p.Printf("%s %s\n", p.p.Dim(icon+" "+displayName+":"), p.p.Yellow(info))
	} else {
		p.p.Println(p.p.Dim(icon + " " + displayName))
	}
}

func (p *Parser) handleToolResult(ev Event) {
	p.breakLine()
	name := p.toolNames[ev.ToolID]
	if name == "" {
		name = "tool"
	}
	if ev.Failed {
		msg := firstLine(ev.Text)
		if msg != "" {
			msg = ": " + msg
		}
		p.p.Println("  " + p.p.Red(display.IconFailure+" "+name+" failed"+msg))
		return
	}
	p.p.Println("  " + p.p.Dim(display.IconSuccess+" "+name))
}

func (p *Parser) handleError(ev Event) {
	p.breakLine()
	if ev.Failed {
		p.LastError = ev.Text
		p.p.Println(p.p.Red("⚠  " + ev.Text))
		return
	}
	p.p.Println(p.p.Yellow("⚠  " + ev.Text))
}

func (p *Parser) handleResult(ev Event) {
	p.breakLine()
	if ev.Stats != nil {
		p.Stats = ev.Stats
	}
	if ev.Failed {
		if ev.Text != "" {
			p.LastError = ev.Text
		}
		p.p.Println()
		p.p.Println(p.p.Red(p.p.Bold("⚠  Task failed")))
		return
	}
	// The result usually repeats the assistant output already shown
	p.result = ev.Text
}

// ProcessReader processes a stream of JSON lines from a reader. A line over
// maxLineSize counts as dropped and reading continues with the next one.
func (p *Parser) ProcessReader(r io.Reader) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		line     []byte
		oversize int
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if oversize == 0 && len(line)+len(chunk) <= maxLineSize {
			line = append(line, chunk...)
		} else {
			oversize += len(line) + len(chunk)
			line = line[:0]
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if oversize > 0 {
			p.Dropped++
			p.logger.Debug("dropping oversized stream line", zap.Int("bytes", oversize))
		} else {
			p.ProcessLine(string(line))
		}
		line, oversize = line[:0], 0

		if err == io.EOF {
			break
		}
		if err != nil {
			p.breakLine()
			return err
		}
	}
	p.breakLine()
	return nil
}

// toolLabel maps tool names from both CLIs to an icon and display name.
func toolLabel(name string) (string, string) {
	switch name {
	case "Read", "read_file", "read_many_files":
		return "📖", "Reading file"
	case "Write", "write_file":
		return "✏️", "Writing file"
	case "Edit", "MultiEdit", "replace":
		return "📝", "Editing file"
	case "Bash", "run_shell_command":
		return "💻", "Running command"
	case "Glob", "glob", "list_directory", "LS":
		return "🔍", "Finding files"
	case "Grep", "search_file_content":
		return "🔎", "Searching"
	case "TodoWrite", "write_todos":
		return "📋", "Updating todos"
	case "Task":
		return "🚀", "Launching agent"
	case "WebFetch", "web_fetch":
		return "🌐", "Fetching URL"
	case "WebSearch", "google_web_search":
		return "🔍", "Web search"
	case "save_memory":
		return "🧠", "Saving memory"
	case "":
		return "🔧", "Tool"
	}
	return "🔧", name
}

// extractToolInfo extracts a one-line summary from tool arguments
func extractToolInfo(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	for _, key := range []string{"file_path", "absolute_path", "path", "dir_path"} {
		if path, ok := input[key].(string); ok && path != "" {
			return shortenPath(path)
		}
	}
	if cmd, ok := input["command"].(string); ok && cmd != "" {
		return display.Truncate(firstLine(cmd), 60)
	}
	for _, key := range []string{"pattern", "query", "url", "description"} {
		if s, ok := input[key].(string); ok && s != "" {
			return display.Truncate(s, 40)
		}
	}
	if todos, ok := input["todos"].([]any); ok {
		return fmt.Sprintf("%d items", len(todos))
	}
	return ""
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// shortenPath shortens a file path for display
func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+"/") {
		return "~" + path[len(home):]
	}
	return path
}
