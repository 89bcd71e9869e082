package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hollowpoint/aplink/pkg/config"
	"github.com/hollowpoint/aplink/pkg/core"
	"github.com/hollowpoint/aplink/pkg/items"
	"github.com/hollowpoint/aplink/pkg/log"
	"github.com/hollowpoint/aplink/pkg/save"
	"github.com/hollowpoint/aplink/pkg/version"
)

// consoleHost is a host with no game attached: the console can chat
// and observe the room, but never has an active game session.
type consoleHost struct{}

func (consoleHost) SessionActive() bool { return false }

func (consoleHost) GrantItem(id items.ID, quantity uint32, durability int32) {}

func (consoleHost) GrantGesture(gestureID int, source items.ID) {}

func (consoleHost) SetGestureAcquired(gestureID int) {}

func (consoleHost) GiveItem(id items.ID, quantity uint32) {}

func (consoleHost) RemoveItem(id items.ID, quantity uint32) {}

func (consoleHost) PlaceholderItems() []items.Placeholder { return nil }

func (consoleHost) PlayerDead() (bool, bool) { return false, false }

func (consoleHost) KillPlayer() {}

func (consoleHost) GoalReached() bool { return false }

func (consoleHost) MissingDLC() string { return "" }

func main() {
	configPath := flag.String("config", "apconfig.json", "Path to the connection config file")
	url := flag.String("url", "", "Server URL, overriding the config file")
	slot := flag.String("slot", "", "Slot name, overriding the config file")
	password := flag.String("password", "", "Room password, overriding the config file")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	logger := log.New(os.Stderr, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.URL = *url
	}
	if *slot != "" {
		cfg.Slot = *slot
	}
	if *password != "" {
		cfg.Password = *password
	}
	if cfg.URL == "" || cfg.Slot == "" {
		fmt.Fprintln(os.Stderr, "A server URL and slot name are required; pass -url and -slot or fill in the config file")
		os.Exit(1)
	}

	host := consoleHost{}
	store := save.NewStore(host.SessionActive)
	c := core.NewCore(core.NewCoreOptions{
		Config:     cfg,
		ConfigPath: *configPath,
		Host:       host,
		Store:      store,
		Version:    version.Get(),
	})
	defer c.Close()

	fmt.Printf("Connecting to %s as %s...\n", cfg.URL, cfg.Slot)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Update()
			for _, print := range c.ConsumeLogs() {
				fmt.Println(print.String())
			}
			if err := c.TakeError(); err != nil {
				fmt.Printf("Fatal error: %v\n", err)
			}
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/reconnect":
				c.Reconnect()
			case line == "/quit":
				return
			default:
				if session := c.Session(); session != nil {
					session.Say(line)
				} else {
					fmt.Println("Not connected")
				}
			}
		}
	}
}
