package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fractionax_search/internal/classifier"
	"fractionax_search/internal/maps"
	"fractionax_search/internal/pipeline"
	"fractionax_search/internal/searchapi"
	"fractionax_search/internal/selection"
	"fractionax_search/platform/config"
	"fractionax_search/platform/logger"
	"fractionax_search/platform/sanitize"

	"golang.org/x/term"
)

const (
	keyCtrlC     = 3
	keyTab       = 9
	keyCtrlL     = 12
	keyEnter     = 13
	keyEscape    = 27
	keyBackspace = 127
	keyCtrlH     = 8
)

type keyEvent struct {
	key  selection.Key
	char rune
	ctrl byte
}

func main() {
	logPath := flag.String("log", "", "write debug logs to this file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	log := logger.Discard()
	if *logPath != "" {
		f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to open log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		log = logger.NewWithWriter(f, slog.LevelDebug)
	}

	policy, err := classifier.LoadPolicy(cfg.GetClassifierPolicyPath())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load classifier policy:", err)
		os.Exit(1)
	}

	var cache maps.Cache
	if cfg.IsCacheEnabled() {
		if rc, err := maps.NewRedisCacheFromURL(cfg.GetRedisURL(), cfg.GetMapsCacheTTL(), log); err == nil {
			defer rc.Close()
			cache = rc
		}
	}

	session := pipeline.New(pipeline.Deps{
		Provider:   maps.NewService(cfg, cache, log),
		Searcher:   searchapi.NewClient(cfg, log),
		Classifier: classifier.New(policy),
		Log:        log,
	}, pipeline.Options{
		Debounce:     cfg.GetSuggestDebounce(),
		MinChars:     cfg.GetSuggestMinChars(),
		HistoryLimit: cfg.GetChatHistoryLimit(),
	})
	defer session.Close()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintln(os.Stderr, "(interactive mode not supported on this terminal)")
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run(ctx, session)
	fmt.Print("\033[H\033[2J")
}

func run(ctx context.Context, session *pipeline.Session) {
	keys := make(chan keyEvent)
	go readKeys(bufio.NewReader(os.Stdin), keys)

	done := make(chan struct{}, 1)
	redraw(session)
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Changes():
			redraw(session)
		case <-done:
			redraw(session)
		case ev, ok := <-keys:
			if !ok || ev.ctrl == keyCtrlC {
				return
			}
			handleKey(ctx, session, ev, done)
			redraw(session)
		}
	}
}

func handleKey(ctx context.Context, session *pipeline.Session, ev keyEvent, done chan<- struct{}) {
	text := session.View().Input.Text
	switch {
	case ev.key == selection.Enter:
		if session.Key(ctx, selection.Enter) {
			return
		}
		go func() {
			_, _ = session.Submit(ctx)
			select {
			case done <- struct{}{}:
			default:
			}
		}()
	case ev.key != "":
		session.Key(ctx, ev.key)
	case ev.ctrl == keyTab:
		session.Focus()
	case ev.ctrl == keyCtrlL:
		session.ClearConversation(ctx)
	case ev.ctrl == keyBackspace || ev.ctrl == keyCtrlH:
		if text == "" {
			return
		}
		r := []rune(text)
		session.Input(string(r[:len(r)-1]))
	case ev.char != 0:
		session.Input(text + string(ev.char))
	}
}

func readKeys(reader *bufio.Reader, out chan<- keyEvent) {
	defer close(out)
	for {
		r, _, err := reader.ReadRune()
		if err != nil {
			return
		}
		switch {
		case r == keyEscape:
			if reader.Buffered() == 0 {
				out <- keyEvent{key: selection.Escape}
				continue
			}
			b1, _ := reader.ReadByte()
			if b1 != '[' {
				out <- keyEvent{key: selection.Escape}
				continue
			}
			b2, _ := reader.ReadByte()
			switch b2 {
			case 'A':
				out <- keyEvent{key: selection.ArrowUp}
			case 'B':
				out <- keyEvent{key: selection.ArrowDown}
			}
		case r == keyEnter || r == '\n':
			out <- keyEvent{key: selection.Enter}
		case r < 32 || r == keyBackspace:
			out <- keyEvent{ctrl: byte(r)}
		default:
			out <- keyEvent{char: r}
		}
	}
}

func redraw(session *pipeline.Session) {
	v := session.View()
	var b strings.Builder

	b.WriteString("\033[H\033[2J")
	fmt.Fprintf(&b, "[%s] > %s", v.Input.Mode, v.Input.Text)
	if v.Loading {
		b.WriteString("  (searching addresses...)")
	}
	if v.Dispatching {
		b.WriteString("  (running search...)")
	}
	b.WriteString("\r\n")

	if v.Selection.Open {
		for i, s := range v.Selection.Suggestions {
			prefix := "   "
			if i == v.Selection.HighlightedIndex {
				prefix = " > "
			}
			b.WriteString(prefix + sanitize.Terminal(s.Description) + "\r\n")
		}
	}
	if v.InlineError != "" {
		b.WriteString("! " + v.InlineError + "\r\n")
	} else if v.Warning != "" {
		b.WriteString("! " + v.Warning + "\r\n")
	}
	if v.Address != nil && v.Address.Validation.IsValid {
		coords := "no coordinates"
		if v.Address.Validation.HasCoordinates {
			coords = fmt.Sprintf("%.5f, %.5f", *v.Address.Record.Latitude, *v.Address.Record.Longitude)
		}
		fmt.Fprintf(&b, "selected: %s (%s)\r\n", sanitize.Terminal(v.Address.Address), coords)
	}

	if v.Summary != "" {
		b.WriteString("\r\n" + sanitize.Terminal(v.Summary) + "\r\n")
		for i, l := range v.Listings {
			if i == 10 {
				fmt.Fprintf(&b, "  ... %d more\r\n", len(v.Listings)-10)
				break
			}
			fmt.Fprintf(&b, "  %s  $%.0f  %dbd/%.1fba\r\n",
				sanitize.Terminal(l.Address+", "+l.City+" "+l.State), l.Price, l.Bedrooms, l.Bathrooms)
		}
	}
	if n := len(v.History); n > 0 {
		fmt.Fprintf(&b, "\r\n(%d messages in conversation)\r\n", n)
	}
	b.WriteString("\r\n(type to search, ↑/↓ + Enter to pick, Tab to reopen, Ctrl-L to clear, Ctrl-C to quit)\r\n")
	fmt.Fprintf(&b, "\033[1;%dH", len("["+string(v.Input.Mode)+"] > ")+len([]rune(v.Input.Text))+1)

	fmt.Print(b.String())
}
