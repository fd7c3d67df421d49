package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Subs maps message placeholders (e.g. "@nid") to their values.
type Subs map[string]any

// Channel is a named logger that accepts templated messages with
// placeholder substitutions, the way content-management hosts log
// watchdog events:
//
//	ch.Log(ctx, slog.LevelWarn, "No node found with the ID @nid.", logging.Subs{"@nid": 7})
//
// The rendered message is the record text; each substitution is also
// attached as a structured attribute without its sigil.
type Channel struct {
	name   string
	logger *slog.Logger
}

// NewChannel returns a channel that writes through logger.
// A nil logger uses the slog default at call time.
func NewChannel(name string, logger *slog.Logger) *Channel {
	return &Channel{name: name, logger: logger}
}

// Name returns the channel name.
func (c *Channel) Name() string {
	return c.name
}

// Log renders template with subs and emits it at level.
func (c *Channel) Log(ctx context.Context, level slog.Level, template string, subs map[string]any) {
	logger := c.logger
	if logger == nil {
		logger = FromContext(ctx)
	}
	if !logger.Enabled(ctx, level) {
		return
	}

	args := make([]any, 0, 2+2*len(subs))
	args = append(args, "channel", c.name)
	for _, k := range sortedKeys(subs) {
		args = append(args, strings.TrimLeft(k, "@%:"), subs[k])
	}
	logger.Log(ctx, level, Expand(template, subs), args...)
}

// Expand replaces every placeholder key of subs found in template.
// Longer keys are replaced first so "@nid" never clobbers "@nid_parent".
func Expand(template string, subs map[string]any) string {
	if len(subs) == 0 {
		return template
	}
	keys := sortedKeys(subs)
	sort.SliceStable(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, fmt.Sprint(subs[k]))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
