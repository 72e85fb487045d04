package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"rtc64/rtc"
)

var errUsage = errors.New("usage")

// shell runs the interactive commands against one subsystem.
type shell struct {
	rtc *rtc.Subsystem
	out io.Writer
}

// run executes one command line and reports whether the session should
// end.
func (sh *shell) run(args []string) (quit bool, err error) {
	switch args[0] {
	case "quit", "exit", "q":
		fmt.Fprintln(sh.out, "Goodbye!")
		return true, nil
	case "help", "?":
		sh.help()
	case "state":
		fmt.Fprintf(sh.out, "state: %s\n", sh.rtc.State())
	case "detect":
		sh.detect()
	case "get":
		sh.get()
	case "set":
		err = sh.set(args[1:])
	case "resync":
		sh.rtc.Resync()
		sh.get()
	case "source":
		err = sh.source(args[1:])
	case "probe":
		err = sh.probe(args[1:])
	default:
		fmt.Fprintf(sh.out, "Unknown command: %s (type 'help' for available commands)\n", args[0])
	}
	return false, err
}

func (sh *shell) help() {
	fmt.Fprintln(sh.out, "\nAvailable commands:")
	fmt.Fprintln(sh.out, "  help              - Show this help message")
	fmt.Fprintln(sh.out, "  state             - Show the start-up state")
	fmt.Fprintln(sh.out, "  detect            - List available clocks")
	fmt.Fprintln(sh.out, "  get               - Show the current time")
	fmt.Fprintln(sh.out, "  set <time>        - Set the time (RFC 3339, unix seconds or 'now')")
	fmt.Fprintln(sh.out, "  resync            - Re-read the hardware clock")
	fmt.Fprintln(sh.out, "  source [name]     - Show or select the clock (none, joybus, dd, bb)")
	fmt.Fprintln(sh.out, "  probe [name]      - Check whether a clock keeps written time")
	fmt.Fprintln(sh.out, "  quit/exit/q       - Exit the program")
	fmt.Fprintln(sh.out)
}

func (sh *shell) detect() {
	for _, src := range []rtc.Source{rtc.SourceJoybus, rtc.SourceDD, rtc.SourceBB} {
		mark := " "
		if sh.rtc.GetSource() == src {
			mark = "*"
		}
		fmt.Fprintf(sh.out, "%s %-7s available=%t\n", mark, src, sh.rtc.IsSourceAvailable(src))
	}
}

func (sh *shell) get() {
	ts := sh.rtc.GetTime()
	fmt.Fprintf(sh.out, "%s (%d) from %s\n", time.Unix(ts, 0).UTC().Format(time.RFC3339), ts, sh.rtc.GetSource())
}

// parseTime accepts RFC 3339, unix seconds or "now".
func parseTime(s string) (int64, error) {
	if s == "now" {
		return time.Now().Unix(), nil
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ts, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("bad time %q: %w", s, err)
	}
	return t.Unix(), nil
}

func (sh *shell) set(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: set <time>", errUsage)
	}
	ts, err := parseTime(args[0])
	if err != nil {
		return err
	}
	if !rtc.InRange(ts) {
		return fmt.Errorf("time %d outside %d..%d", ts, rtc.TimestampMin, rtc.TimestampMax)
	}
	if sh.rtc.SetTime(ts) {
		fmt.Fprintf(sh.out, "Set %s clock\n", sh.rtc.GetSource())
	} else {
		fmt.Fprintln(sh.out, "Hardware write failed, time kept for this session only")
	}
	sh.get()
	return nil
}

func (sh *shell) sourceArg(args []string) (rtc.Source, error) {
	if len(args) == 0 {
		return sh.rtc.GetSource(), nil
	}
	if len(args) > 1 {
		return rtc.SourceNone, errUsage
	}
	return rtc.ParseSource(args[0])
}

func (sh *shell) source(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(sh.out, "source: %s\n", sh.rtc.GetSource())
		return nil
	}
	src, err := sh.sourceArg(args)
	if err != nil {
		return err
	}
	if !sh.rtc.SetSource(src) {
		return fmt.Errorf("source %s not available", src)
	}
	sh.get()
	return nil
}

func (sh *shell) probe(args []string) error {
	src, err := sh.sourceArg(args)
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s persistent=%t\n", src, sh.rtc.IsSourcePersistent(src))
	return nil
}
