package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/flows"
	"github.com/zulandar/switchboard/internal/langflow"
	"github.com/zulandar/switchboard/internal/sessions"
)

// keepAliveInterval is how often an in-flight conversation logs that it is
// still waiting on the backend.
const keepAliveInterval = 30 * time.Second

// User-visible notices. Error notices get a :warning: prefix at send time.
const (
	noticeNoFlow = "No flow is configured for this channel. " +
		"Ask an admin to configure one with: `@switchboard flows add ...`"
	noticeTimeout    = "The agent is taking longer than expected. Please try again."
	noticeAPIError   = "There was an error processing your message. Please try again."
	noticeBackend    = "There was an error communicating with the agent. Please try again."
	noticeUnexpected = "An unexpected error occurred. Please try again."
	noticeEmpty      = "The agent didn't generate a response. Please rephrase your question."
)

// Router is the admission and orchestration state machine for inbound
// events. Each event passes dedup and addressing checks, then runs either
// the command path (administrative mutations of the flow catalog) or the
// conversation path (session resolution + backend call + response dispatch).
type Router struct {
	cfg      *config.Config
	registry *flows.Registry
	store    *sessions.Store
	clients  *langflow.Manager
	adapter  Adapter
	commands *CommandHandler
	out      io.Writer

	guard        *admissionGuard
	participated *threadSet

	selfOnce sync.Once
	selfID   string
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Config   *config.Config
	Registry *flows.Registry
	Store    *sessions.Store
	Clients  *langflow.Manager
	Adapter  Adapter
	Out      io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bridge: router: config is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("bridge: router: registry is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("bridge: router: session store is required")
	}
	if opts.Clients == nil {
		return nil, fmt.Errorf("bridge: router: client manager is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bridge: router: adapter is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	commands, err := NewCommandHandler(CommandHandlerOpts{
		Config:   opts.Config,
		Registry: opts.Registry,
		Clients:  opts.Clients,
	})
	if err != nil {
		return nil, err
	}
	window := time.Duration(opts.Config.DedupWindowSec) * time.Second
	return &Router{
		cfg:          opts.Config,
		registry:     opts.Registry,
		store:        opts.Store,
		clients:      opts.Clients,
		adapter:      opts.Adapter,
		commands:     commands,
		out:          out,
		guard:        newAdmissionGuard(window),
		participated: newThreadSet(),
	}, nil
}

// messageKey identifies one message event for dedup purposes.
func messageKey(channelID, ts string) string {
	return channelID + ":" + ts
}

// Handle classifies and processes a single inbound message. Decision order:
//  1. Key in flight or inside the replay window → drop.
//  2. Authored by the bot itself → drop.
//  3. Addressing: @mention and DMs are always eligible; a plain thread
//     reply only when the bot has replied in that thread before; anything
//     else → drop.
//  4. Empty text after mention stripping → drop.
//  5. Mentioned command verb → command path; otherwise conversation path.
//
// Safe to run on its own goroutine; the daemon spawns one per event.
func (r *Router) Handle(ctx context.Context, msg InboundMessage) {
	key := messageKey(msg.ChannelID, msg.Timestamp)
	if r.guard.Suppressed(key) {
		fmt.Fprintf(r.out, "bridge: router: duplicate %s, dropped\n", key)
		return
	}

	self := r.resolveSelf()
	if self != "" && msg.UserID == self {
		return
	}

	// Addressing: resolve the thread root this conversation keys on.
	var root string
	switch {
	case msg.Mention, msg.ChannelType == "im":
		root = msg.ThreadTS
		if root == "" {
			root = msg.Timestamp // this message starts the thread
		}
	case msg.ThreadTS != "":
		if !r.participated.Has(sessions.ThreadKey(msg.ChannelID, msg.ThreadTS)) {
			fmt.Fprintf(r.out, "bridge: router: not addressed [ch=%s thread=%s], dropped\n",
				msg.ChannelID, msg.ThreadTS)
			return
		}
		root = msg.ThreadTS
	default:
		return
	}

	text := stripMention(msg.Text, self)
	if text == "" {
		return
	}

	if !r.guard.Admit(key) {
		fmt.Fprintf(r.out, "bridge: router: lost admission race for %s\n", key)
		return
	}
	defer r.guard.Finish(key)
	defer func() {
		if p := recover(); p != nil {
			log.Printf("bridge: router: panic handling %s: %v", key, p)
			r.sendErrorNotice(ctx, msg.ChannelID, root, noticeUnexpected)
		}
	}()

	if msg.Mention && isCommand(text) {
		fmt.Fprintf(r.out, "bridge: router: → command [ch=%s user=%s] %q\n",
			msg.ChannelID, msg.UserID, truncate(text, 80))
		r.handleCommand(ctx, msg, text)
		return
	}

	fmt.Fprintf(r.out, "bridge: router: → conversation [ch=%s thread=%s user=%s] %q\n",
		msg.ChannelID, root, msg.UserID, truncate(text, 80))
	r.handleConversation(ctx, msg, root, text)
}

// handleConversation resolves the flow and session for the thread, runs the
// backend call, and dispatches the answer.
func (r *Router) handleConversation(ctx context.Context, msg InboundMessage, root, text string) {
	flow, err := r.registry.ResolveForChannel(msg.ChannelID)
	if err != nil {
		log.Printf("bridge: router: resolve flow for %s: %v", msg.ChannelID, err)
		r.sendErrorNotice(ctx, msg.ChannelID, root, noticeUnexpected)
		return
	}
	if flow == nil {
		r.sendErrorNotice(ctx, msg.ChannelID, root, noticeNoFlow)
		return
	}

	session, _, err := r.store.GetOrCreate(msg.ChannelID, root, flow.Name)
	if err != nil {
		log.Printf("bridge: router: session for %s:%s: %v", msg.ChannelID, root, err)
		r.sendErrorNotice(ctx, msg.ChannelID, root, noticeUnexpected)
		return
	}

	// Session continuity wins over channel reconfiguration: a thread keeps
	// the flow it started on even if the channel has since moved.
	if session.FlowName != "" && session.FlowName != flow.Name {
		original, err := r.registry.Get(session.FlowName)
		if err != nil {
			log.Printf("bridge: router: re-resolve flow %q: %v", session.FlowName, err)
			r.sendErrorNotice(ctx, msg.ChannelID, root, noticeUnexpected)
			return
		}
		if original == nil {
			log.Printf("bridge: router: session %s bound to missing flow %q", session.Token, session.FlowName)
			r.sendErrorNotice(ctx, msg.ChannelID, root, noticeNoFlow)
			return
		}
		fmt.Fprintf(r.out, "bridge: router: using session's original flow %q over channel flow %q\n",
			original.Name, flow.Name)
		flow = original
	}

	client, err := r.clients.Get(flow)
	if err != nil {
		log.Printf("bridge: router: client for flow %q: %v", flow.Name, err)
		r.sendErrorNotice(ctx, msg.ChannelID, root, noticeUnexpected)
		return
	}

	// Keep-alive side task for the duration of the backend call. Deferred
	// as well so a panicking call stops it on the way out.
	kaCtx, cancelKeepAlive := context.WithCancel(ctx)
	defer cancelKeepAlive()
	go r.keepAlive(kaCtx, msg.ChannelID, root)

	answer, err := client.SendMessage(ctx, text, session.Token)
	cancelKeepAlive()

	if err != nil {
		r.sendErrorNotice(ctx, msg.ChannelID, root, classifyBackendError(err))
		log.Printf("bridge: router: backend call [ch=%s thread=%s flow=%s]: %v",
			msg.ChannelID, root, flow.Name, err)
		return
	}

	// Participation is marked only after a successful call so that a thread
	// the bot never actually answered in doesn't accept bare replies.
	r.participated.Mark(sessions.ThreadKey(msg.ChannelID, root))

	if err := r.dispatchResponse(ctx, msg.ChannelID, root, answer); err != nil {
		log.Printf("bridge: router: dispatch [ch=%s thread=%s]: %v", msg.ChannelID, root, err)
	}
}

// dispatchResponse sends the answer into the thread, chunked to the
// transport limit. An empty answer still produces one notice. A chunk
// send failure aborts the remaining chunks.
func (r *Router) dispatchResponse(ctx context.Context, channelID, root, text string) error {
	if text == "" {
		r.sendErrorNotice(ctx, channelID, root, noticeEmpty)
		return nil
	}

	chunks := SplitMessage(text, MaxMessageLength)
	for i, chunk := range chunks {
		if err := r.adapter.Send(ctx, OutboundMessage{
			ChannelID: channelID,
			ThreadTS:  root,
			Text:      chunk,
		}); err != nil {
			return fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

// classifyBackendError maps a backend failure to its user-visible notice.
func classifyBackendError(err error) string {
	var timeoutErr *langflow.TimeoutError
	var apiErr *langflow.APIError
	switch {
	case errors.As(err, &timeoutErr):
		return noticeTimeout
	case errors.As(err, &apiErr):
		return noticeAPIError
	default:
		return noticeBackend
	}
}

// keepAlive logs periodically while a backend call is outstanding so long
// agent runs are visible in the daemon output. Cancelled when the call
// resolves, whatever the outcome.
func (r *Router) keepAlive(ctx context.Context, channelID, root string) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(r.out, "bridge: router: still waiting on backend [ch=%s thread=%s]\n",
				channelID, root)
		}
	}
}

// sendErrorNotice posts a warning-prefixed notice into the thread.
// Best-effort: a send failure is logged, not propagated.
func (r *Router) sendErrorNotice(ctx context.Context, channelID, root, notice string) {
	if err := r.adapter.Send(ctx, OutboundMessage{
		ChannelID: channelID,
		ThreadTS:  root,
		Text:      ":warning: " + notice,
	}); err != nil {
		log.Printf("bridge: router: send notice: %v", err)
	}
}

// resolveSelf returns the bot's own user ID, resolving it from the adapter
// on first use and caching it afterwards.
func (r *Router) resolveSelf() string {
	r.selfOnce.Do(func() {
		if bui, ok := r.adapter.(BotUserIDer); ok {
			r.selfID = bui.BotUserID()
			if r.selfID != "" {
				log.Printf("bridge: router: bot user ID %s", r.selfID)
			}
		}
	})
	return r.selfID
}

// stripMention removes the bot's own mention decoration and trims the text.
func stripMention(text, selfID string) string {
	if selfID != "" {
		text = strings.ReplaceAll(text, "<@"+selfID+">", "")
	}
	return strings.TrimSpace(text)
}

// commandVerbs are the recognized administrative verbs.
var commandVerbs = map[string]bool{
	"help":    true,
	"flows":   true,
	"channel": true,
}

// isCommand reports whether the first word of the stripped text is a
// recognized administrative verb.
func isCommand(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	return commandVerbs[strings.ToLower(fields[0])]
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
