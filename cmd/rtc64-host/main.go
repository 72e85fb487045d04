// Command rtc64-host exercises the RTC subsystem from a PC, either through
// a USB Joybus adapter or against a simulated console.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"rtc64/core"
	"rtc64/host/config"
	"rtc64/rtc"
)

var (
	configPath = flag.String("config", config.DefaultPath, "TOML config file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config, ignored for USB CDC)")
	cart       = flag.String("cart", "", "Flash cart type: unknown, 64drive, everdrive-x7, everdrive-v3, sc64")
	verbose    = flag.Bool("verbose", false, "Enable debug logging")
	simulate   = flag.Bool("sim", false, "Run against a simulated console instead of an adapter")
	simRTC     = flag.String("sim-rtc", "accept", "Simulated cartridge RTC: accept, ignore, none")
	simDD      = flag.Bool("sim-dd", false, "Simulate a 64DD")
	simBB      = flag.Bool("sim-bb", false, "Simulate an iQue Player")
)

func main() {
	flag.Parse()
	core.SetDebugWriter(os.Stderr)

	vals, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	core.SetDebugEnabled(vals.Debug)

	var m *machine
	if vals.Simulate {
		m, err = newSimMachine(simOptions{rtc: *simRTC, dd: *simDD, bb: *simBB, settleMs: vals.SettleMs})
	} else {
		m, err = newAdapterMachine(vals)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	rtc.SetDefault(m.rtc)
	fmt.Println("Detecting clocks...")
	if rtc.Init() {
		fmt.Printf("Using %s clock\n", rtc.GetSource())
	} else {
		fmt.Println("No hardware clock found")
	}
	defer rtc.Close()

	if src, ok := vals.PreferredSource(); ok && !rtc.SetSource(src) {
		fmt.Fprintf(os.Stderr, "Warning: preferred source %s not available\n", src)
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	sh := &shell{rtc: m.rtc, out: os.Stdout}
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := sh.run(strings.Fields(line))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if quit {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Error().Err(err).Msg("reading input")
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (config.Values, error) {
	vals, err := config.Load(afero.NewOsFs(), *configPath)
	if err != nil && !(*simulate || *device != "") {
		return vals, err
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			vals.Device = *device
		case "baud":
			vals.Baud = *baud
		case "cart":
			vals.Cart = *cart
		case "verbose":
			vals.Debug = *verbose
		case "sim":
			vals.Simulate = *simulate
		}
	})
	return vals, vals.Validate()
}
