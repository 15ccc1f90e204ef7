package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/annel0/mmo-netcode/internal/eventbus"
	"github.com/annel0/mmo-netcode/internal/protocol/events"
)

const (
	defaultNATSAddr = "nats://127.0.0.1:4222"
	timeFormat      = "2006-01-02T15:04:05Z"

	// idleTimeout завершает пересмотр истории: если новых сообщений нет
	// дольше этого времени, считается, что стрим дочитан
	idleTimeout = 2 * time.Second
)

func main() {
	var (
		natsAddr   = flag.String("nats", defaultNATSAddr, "NATS server address")
		command    = flag.String("cmd", "tail", "Command: tail, stats, types")
		eventTypes = flag.String("types", "", "Event types filter (comma-separated, e.g. player.connected)")
		players    = flag.String("players", "", "Player IDs filter (comma-separated)")
		since      = flag.String("since", "1h", "Time duration since now (e.g., 1h, 30m)")
		limit      = flag.Int("limit", 100, "Maximum number of events")
		follow     = flag.Bool("follow", false, "Follow new events (like tail -f)")
	)
	flag.Parse()

	nc, err := nats.Connect(*natsAddr)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer nc.Drain()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("❌ JetStream unavailable: %v", err)
	}

	switch *command {
	case "tail":
		if err := tailEvents(js, &TailOptions{
			EventTypes: parseStringList(*eventTypes),
			Players:    parseStringList(*players),
			Since:      *since,
			Limit:      *limit,
			Follow:     *follow,
		}); err != nil {
			log.Fatalf("❌ Tail failed: %v", err)
		}

	case "stats":
		if err := showStats(js, &StatsOptions{
			EventTypes: parseStringList(*eventTypes),
			Since:      *since,
		}); err != nil {
			log.Fatalf("❌ Stats failed: %v", err)
		}

	case "types":
		if err := showTypes(js, *since); err != nil {
			log.Fatalf("❌ Types failed: %v", err)
		}

	default:
		fmt.Printf("❌ Unknown command: %s\n", *command)
		fmt.Println("Available commands: tail, stats, types")
		os.Exit(1)
	}
}

type TailOptions struct {
	EventTypes []string
	Players    []string
	Since      string
	Limit      int
	Follow     bool
}

type StatsOptions struct {
	EventTypes []string
	Since      string
}

// subjectFor выбирает subject подписки: единственный фильтр по типу
// ложится прямо в subject, остальное фильтруется на клиенте
func subjectFor(types []string) string {
	if len(types) == 1 {
		return eventbus.SubjectPrefix + "." + types[0]
	}
	return eventbus.SubjectPrefix + ".*"
}

// replaySubscribe создаёт эфемерного упорядоченного потребителя,
// начинающего с указанного момента истории стрима
func replaySubscribe(js nats.JetStreamContext, subject string, start time.Time) (*nats.Subscription, error) {
	return js.SubscribeSync(subject,
		nats.OrderedConsumer(),
		nats.StartTime(start),
	)
}

// tailEvents выводит события в реальном времени
func tailEvents(js nats.JetStreamContext, opts *TailOptions) error {
	fmt.Printf("🎬 Tailing events (limit: %d, follow: %v)\n", opts.Limit, opts.Follow)

	startTime, err := parseSinceTime(opts.Since, time.Now())
	if err != nil {
		return fmt.Errorf("invalid since time: %v", err)
	}

	sub, err := replaySubscribe(js, subjectFor(opts.EventTypes), startTime)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	eventCount := 0
	for eventCount < opts.Limit || opts.Follow {
		wait := idleTimeout
		if opts.Follow {
			wait = time.Hour
		}

		msg, err := sub.NextMsg(wait)
		if err == nats.ErrTimeout {
			if opts.Follow {
				continue
			}
			break
		}
		if err != nil {
			return fmt.Errorf("stream error: %v", err)
		}

		ev, ok := decodeEnvelope(msg.Data)
		if !ok {
			continue
		}
		if !matchFilters(ev, opts.EventTypes, opts.Players) {
			continue
		}

		printEvent(ev)
		eventCount++
	}

	fmt.Printf("\n📊 Total events: %d\n", eventCount)
	return nil
}

// showStats выводит статистику событий по типам
func showStats(js nats.JetStreamContext, opts *StatsOptions) error {
	fmt.Println("📊 Event statistics")

	startTime, err := parseSinceTime(opts.Since, time.Now())
	if err != nil {
		return fmt.Errorf("invalid since time: %v", err)
	}

	sub, err := replaySubscribe(js, subjectFor(opts.EventTypes), startTime)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	counts := make(map[string]int)
	total := 0
	for {
		msg, err := sub.NextMsg(idleTimeout)
		if err == nats.ErrTimeout {
			break
		}
		if err != nil {
			return fmt.Errorf("stream error: %v", err)
		}

		ev, ok := decodeEnvelope(msg.Data)
		if !ok {
			continue
		}
		if !matchFilters(ev, opts.EventTypes, nil) {
			continue
		}
		counts[ev.EventType]++
		total++
	}

	fmt.Printf("Period: %s - now\n", startTime.Format(timeFormat))
	fmt.Printf("Total events: %d\n", total)
	fmt.Println("\nBy event type:")
	for _, t := range knownTypes() {
		if n := counts[t]; n > 0 {
			fmt.Printf("  %s: %d events\n", t, n)
		}
	}
	for t, n := range counts {
		if !isKnownType(t) {
			fmt.Printf("  %s: %d events (unknown)\n", t, n)
		}
	}
	return nil
}

// showTypes выводит типы событий, встреченные в истории стрима
func showTypes(js nats.JetStreamContext, since string) error {
	fmt.Println("📋 Available event types")

	startTime, err := parseSinceTime(since, time.Now())
	if err != nil {
		return fmt.Errorf("invalid since time: %v", err)
	}

	sub, err := replaySubscribe(js, eventbus.SubjectPrefix+".*", startTime)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	type typeInfo struct {
		count     int
		firstSeen time.Time
		lastSeen  time.Time
	}
	seen := make(map[string]*typeInfo)

	for {
		msg, err := sub.NextMsg(idleTimeout)
		if err == nats.ErrTimeout {
			break
		}
		if err != nil {
			return fmt.Errorf("stream error: %v", err)
		}

		ev, ok := decodeEnvelope(msg.Data)
		if !ok {
			continue
		}

		info := seen[ev.EventType]
		if info == nil {
			info = &typeInfo{firstSeen: ev.Timestamp}
			seen[ev.EventType] = info
		}
		info.count++
		info.lastSeen = ev.Timestamp
	}

	for _, t := range knownTypes() {
		info := seen[t]
		if info == nil {
			continue
		}
		fmt.Printf("Type: %s\n", t)
		fmt.Printf("  Count: %d\n", info.count)
		fmt.Printf("  First seen: %s\n", info.firstSeen.Format(timeFormat))
		fmt.Printf("  Last seen: %s\n", info.lastSeen.Format(timeFormat))
		fmt.Println()
	}
	return nil
}

// decodeEnvelope разбирает Envelope из сообщения стрима
func decodeEnvelope(data []byte) (*eventbus.Envelope, bool) {
	var ev eventbus.Envelope
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, false
	}
	return &ev, true
}

// matchFilters проверяет событие на соответствие фильтрам типа и игрока
func matchFilters(ev *eventbus.Envelope, types, players []string) bool {
	if len(types) > 0 && !contains(types, ev.EventType) {
		return false
	}
	if len(players) > 0 {
		var pe events.PlayerEvent
		if err := json.Unmarshal(ev.Payload, &pe); err != nil {
			return false
		}
		if !contains(players, pe.PlayerID) {
			return false
		}
	}
	return true
}

// printEvent выводит событие в читаемом формате
func printEvent(ev *eventbus.Envelope) {
	timestamp := ev.Timestamp.Local().Format("15:04:05")
	fmt.Printf("[%s] %s [%s] %s\n", timestamp, ev.Source, ev.EventType, ev.ID)

	var pe events.PlayerEvent
	if err := json.Unmarshal(ev.Payload, &pe); err != nil {
		return
	}
	switch pe.Type {
	case events.EventPlayerConnected, events.EventPlayerReconnected:
		fmt.Printf("  Player: %s Addr: %s Pos: (%d,%d)\n", pe.PlayerID, pe.Addr, pe.X, pe.Y)
	case events.EventPlayerDisconnected, events.EventPlayerTimedOut:
		fmt.Printf("  Player: %s Last pos: (%d,%d)\n", pe.PlayerID, pe.X, pe.Y)
	case events.EventRecordExpired:
		fmt.Printf("  Player: %s\n", pe.PlayerID)
	}
}

// knownTypes возвращает типы событий сессий в порядке жизненного цикла
func knownTypes() []string {
	return []string{
		string(events.EventPlayerConnected),
		string(events.EventPlayerReconnected),
		string(events.EventPlayerDisconnected),
		string(events.EventPlayerTimedOut),
		string(events.EventRecordExpired),
	}
}

func isKnownType(t string) bool {
	return contains(knownTypes(), t)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// parseStringList парсит строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime парсит относительное время типа "1h", "30m"
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	if since == "" {
		return from, nil
	}

	duration, err := time.ParseDuration(since)
	if err != nil {
		// Пробуем парсить как абсолютное время
		return time.Parse(timeFormat, since)
	}

	return from.Add(-duration), nil
}
