package bridge

import (
	"context"
	"fmt"
	"log"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/flows"
	"github.com/zulandar/switchboard/internal/langflow"
)

const helpText = "*Switchboard commands* (mention me, then:)\n" +
	"• `help` - show this message\n" +
	"• `flows` - list configured flows\n" +
	"• `flows add <name> <url> <flow-id> <api-key> [description...]` - register a flow (admin)\n" +
	"• `flows remove <name>` - remove a flow (admin)\n" +
	"• `flows default <name>` - set the default flow (admin)\n" +
	"• `flows info <name>` - show a flow's configuration\n" +
	"• `channel` / `channel info` - show this channel's flow\n" +
	"• `channel set <name>` - route this channel to a flow (admin)\n" +
	"• `channel reset` - remove this channel's routing (admin)\n" +
	"\nAnything else you say to me goes to the channel's flow."

const noticeAdminOnly = ":no_entry: Sorry, only admins can do that."

// CommandHandler executes the administrative command surface against the
// flow catalog. Execute returns the reply text to post; it never returns
// an error because every failure mode has a user-facing rendering.
type CommandHandler struct {
	cfg      *config.Config
	registry *flows.Registry
	clients  *langflow.Manager
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	Config   *config.Config
	Registry *flows.Registry
	Clients  *langflow.Manager
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bridge: command: config is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("bridge: command: registry is required")
	}
	return &CommandHandler{
		cfg:      opts.Config,
		registry: opts.Registry,
		clients:  opts.Clients,
	}, nil
}

// Execute runs one command line and returns the reply text.
func (h *CommandHandler) Execute(userID, channelID, text string) string {
	args := tokenize(text)
	if len(args) == 0 {
		return helpText
	}

	switch strings.ToLower(args[0]) {
	case "help":
		return helpText
	case "flows":
		return h.flowsCommand(userID, args[1:])
	case "channel":
		return h.channelCommand(userID, channelID, args[1:])
	default:
		return fmt.Sprintf("Unknown command `%s`. Try `help`.", args[0])
	}
}

func (h *CommandHandler) flowsCommand(userID string, args []string) string {
	if len(args) == 0 {
		return h.listFlows()
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if !h.cfg.IsAdmin(userID) {
			return noticeAdminOnly
		}
		return h.addFlow(args[1:])
	case "remove":
		if !h.cfg.IsAdmin(userID) {
			return noticeAdminOnly
		}
		if len(args) < 2 {
			return "Usage: `flows remove <name>`"
		}
		return h.removeFlow(args[1])
	case "default":
		if !h.cfg.IsAdmin(userID) {
			return noticeAdminOnly
		}
		if len(args) < 2 {
			return "Usage: `flows default <name>`"
		}
		return h.setDefaultFlow(args[1])
	case "info":
		if len(args) < 2 {
			return "Usage: `flows info <name>`"
		}
		return h.flowInfo(args[1])
	default:
		return fmt.Sprintf("Unknown flows subcommand `%s`. Try `help`.", args[0])
	}
}

func (h *CommandHandler) listFlows() string {
	list, err := h.registry.List()
	if err != nil {
		log.Printf("bridge: command: list flows: %v", err)
		return ":warning: Couldn't read the flow catalog. Please try again."
	}
	if len(list) == 0 {
		return "No flows configured yet. Add one with `flows add <name> <url> <flow-id> <api-key> [description...]`."
	}

	var b strings.Builder
	b.WriteString("*Configured flows:*\n")
	for _, f := range list {
		marker := ""
		if f.IsDefault {
			marker = " (default)"
		}
		desc := ""
		if f.Description != "" {
			desc = " - " + f.Description
		}
		fmt.Fprintf(&b, "• `%s`%s%s\n", f.Name, marker, desc)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *CommandHandler) addFlow(args []string) string {
	if len(args) < 4 {
		return "Usage: `flows add <name> <url> <flow-id> <api-key> [description...]`"
	}
	name, rawURL, flowID, apiKey := args[0], args[1], args[2], args[3]
	description := ""
	if len(args) > 4 {
		description = strings.Join(args[4:], " ")
	}

	created, err := h.registry.Add(name, rawURL, flowID, apiKey, description, false)
	if err != nil {
		log.Printf("bridge: command: add flow %q: %v", name, err)
		return ":warning: Couldn't save the flow. Please try again."
	}
	if !created {
		return fmt.Sprintf("A flow named `%s` already exists. Remove it first or pick another name.", name)
	}
	if h.clients != nil {
		h.clients.Invalidate(name)
	}
	return fmt.Sprintf("Flow `%s` added.", name)
}

func (h *CommandHandler) removeFlow(name string) string {
	removed, err := h.registry.Remove(name)
	if err != nil {
		log.Printf("bridge: command: remove flow %q: %v", name, err)
		return ":warning: Couldn't remove the flow. Please try again."
	}
	if !removed {
		return fmt.Sprintf("No flow named `%s`.", name)
	}
	if h.clients != nil {
		h.clients.Invalidate(name)
	}
	return fmt.Sprintf("Flow `%s` removed, along with any channel routings that pointed at it.", name)
}

func (h *CommandHandler) setDefaultFlow(name string) string {
	ok, err := h.registry.SetDefault(name)
	if err != nil {
		log.Printf("bridge: command: set default %q: %v", name, err)
		return ":warning: Couldn't update the default flow. Please try again."
	}
	if !ok {
		return fmt.Sprintf("No flow named `%s`.", name)
	}
	if h.clients != nil {
		h.clients.Invalidate(name)
	}
	return fmt.Sprintf("`%s` is now the default flow.", name)
}

func (h *CommandHandler) flowInfo(name string) string {
	f, err := h.registry.Get(name)
	if err != nil {
		log.Printf("bridge: command: flow info %q: %v", name, err)
		return ":warning: Couldn't read the flow catalog. Please try again."
	}
	if f == nil {
		return fmt.Sprintf("No flow named `%s`.", name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Flow `%s`*\n", f.Name)
	fmt.Fprintf(&b, "• URL: %s\n", f.URL)
	fmt.Fprintf(&b, "• Flow ID: `%s`\n", f.FlowID)
	fmt.Fprintf(&b, "• API key: %s\n", maskSecret(f.APIKey))
	if f.Description != "" {
		fmt.Fprintf(&b, "• Description: %s\n", f.Description)
	}
	if f.IsDefault {
		b.WriteString("• Default: yes\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *CommandHandler) channelCommand(userID, channelID string, args []string) string {
	sub := "info"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}

	switch sub {
	case "info":
		return h.channelInfo(channelID)
	case "set":
		if !h.cfg.IsAdmin(userID) {
			return noticeAdminOnly
		}
		if len(args) < 2 {
			return "Usage: `channel set <name>`"
		}
		return h.channelSet(channelID, args[1])
	case "reset":
		if !h.cfg.IsAdmin(userID) {
			return noticeAdminOnly
		}
		return h.channelReset(channelID)
	default:
		return fmt.Sprintf("Unknown channel subcommand `%s`. Try `help`.", args[0])
	}
}

func (h *CommandHandler) channelInfo(channelID string) string {
	name, err := h.registry.ChannelFlowName(channelID)
	if err != nil {
		log.Printf("bridge: command: channel info %s: %v", channelID, err)
		return ":warning: Couldn't read the channel routing. Please try again."
	}
	if name != "" {
		return fmt.Sprintf("This channel is routed to flow `%s`.", name)
	}

	def, err := h.registry.Default()
	if err != nil {
		log.Printf("bridge: command: default flow: %v", err)
		return ":warning: Couldn't read the flow catalog. Please try again."
	}
	if def == nil {
		return "This channel has no routing and no default flow is configured."
	}
	return fmt.Sprintf("This channel has no explicit routing; it uses the default flow `%s`.", def.Name)
}

func (h *CommandHandler) channelSet(channelID, name string) string {
	ok, err := h.registry.SetChannelFlow(channelID, name)
	if err != nil {
		log.Printf("bridge: command: channel set %s -> %q: %v", channelID, name, err)
		return ":warning: Couldn't update the channel routing. Please try again."
	}
	if !ok {
		return fmt.Sprintf("No flow named `%s`.", name)
	}
	return fmt.Sprintf("This channel is now routed to flow `%s`. Threads already in progress keep their original flow.", name)
}

func (h *CommandHandler) channelReset(channelID string) string {
	removed, err := h.registry.RemoveChannelFlow(channelID)
	if err != nil {
		log.Printf("bridge: command: channel reset %s: %v", channelID, err)
		return ":warning: Couldn't update the channel routing. Please try again."
	}
	if !removed {
		return "This channel had no explicit routing."
	}

	def, err := h.registry.Default()
	if err != nil || def == nil {
		return "Channel routing removed. No default flow is configured, so new threads here will get a configuration notice."
	}
	return fmt.Sprintf("Channel routing removed. New threads here will use the default flow `%s`.", def.Name)
}

// tokenize splits a command line, honoring shell-style quoting so flow
// descriptions can contain spaces. Falls back to whitespace splitting on
// unbalanced quotes.
func tokenize(text string) []string {
	args, err := shellwords.Parse(text)
	if err != nil {
		return strings.Fields(text)
	}
	return args
}

// maskSecret renders a secret with only its last four characters visible.
func maskSecret(s string) string {
	if s == "" {
		return "(none)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// handleCommand runs the command and posts the reply threaded under the
// command message itself.
func (r *Router) handleCommand(ctx context.Context, msg InboundMessage, text string) {
	reply := r.commands.Execute(msg.UserID, msg.ChannelID, text)

	root := msg.ThreadTS
	if root == "" {
		root = msg.Timestamp
	}
	if err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID: msg.ChannelID,
		ThreadTS:  root,
		Text:      reply,
	}); err != nil {
		log.Printf("bridge: router: send command reply: %v", err)
	}
}
