package luahost

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/extension"
	"github.com/mailmount/mailmount/pkg/extension/event"
)

// Host of Lua extensions.
type Host struct {
	extHost    *extension.Host
	pool       *statePool
	logContext zerolog.Context
}

// New constructs a new Lua Host, pre-compiling the source. A missing script yields a nil Host and
// no error.
func New(conf config.Lua, extHost *extension.Host) (*Host, error) {
	scriptPath := conf.Path
	if scriptPath == "" {
		return nil, nil
	}

	logger := log.With().Str("module", "lua").Str("phase", "startup").Str("path", scriptPath).
		Logger()

	// Pre-load, parse, and compile script.
	if fi, err := os.Stat(scriptPath); err != nil {
		logger.Info().Msg("Script file not found")
		return nil, nil
	} else if fi.IsDir() {
		return nil, fmt.Errorf("lua script %v is a directory", scriptPath)
	}

	logger.Info().Msg("Loading script")
	file, err := os.Open(scriptPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return NewFromReader(log.Logger, extHost, bufio.NewReader(file), scriptPath)
}

// NewFromReader constructs a new Lua Host, loading Lua source from the provided reader.
// The provided path is used in logging and error messages.
func NewFromReader(
	logger zerolog.Logger,
	extHost *extension.Host,
	r io.Reader,
	path string,
) (*Host, error) {
	logContext := logger.With().Str("module", "lua")

	// Pre-parse, and compile script.
	chunk, err := parse.Parse(r, path)
	if err != nil {
		return nil, err
	}
	proto, err := lua.Compile(chunk, path)
	if err != nil {
		return nil, err
	}

	// Build the pool and confirm LState is retrievable.
	pool := newStatePool(logger, proto)
	h := &Host{extHost: extHost, pool: pool, logContext: logContext}
	ls, err := pool.getState()
	if err != nil {
		return nil, err
	}
	h.wireFunctions(ls)
	pool.putState(ls)

	return h, nil
}

// CreateChannel creates a channel and places it into the named global variable
// in newly created LStates.
func (h *Host) CreateChannel(name string) chan lua.LValue {
	return h.pool.createChannel(name)
}

// wireFunctions registers a listener for each event the script defined a function for.
func (h *Host) wireFunctions(ls *lua.LState) {
	mm, err := getMailmount(ls)
	if err != nil {
		logger := h.logContext.Str("phase", "startup").Logger()
		logger.Error().Err(err).Msg("Failed to obtain Lua mailmount object")
		return
	}

	const listenerName string = "lua"
	events := h.extHost.Events
	if mm.Before.MessageCategorized != nil {
		events.BeforeMessageCategorized.AddListener(listenerName, h.handleBeforeMessageCategorized)
	}
	if mm.After.MessageStored != nil {
		events.AfterMessageStored.AddListener(listenerName, h.handleAfterMessageStored)
	}
	if mm.After.AccountSynced != nil {
		events.AfterAccountSynced.AddListener(listenerName, h.handleAfterAccountSynced)
	}
	if mm.After.MessageSent != nil {
		events.AfterMessageSent.AddListener(listenerName, h.handleAfterMessageSent)
	}
}

func (h *Host) handleBeforeMessageCategorized(req event.CategoryRequest) *event.CategoryResult {
	logger, ls, mm, ok := h.prepareFuncCall("before.message_categorized")
	if !ok {
		return nil
	}
	defer h.pool.putState(ls)

	if err := ls.CallByParam(
		lua.P{Fn: mm.Before.MessageCategorized, NRet: 1, Protect: true},
		wrapCategoryRequest(ls, &req),
	); err != nil {
		logger.Error().Err(err).Msg("Failed to call Lua function")
		return nil
	}

	lval := ls.Get(-1)
	ls.Pop(1)
	switch v := lval.(type) {
	case lua.LString:
		if v != "" {
			return &event.CategoryResult{Category: string(v)}
		}
	case *lua.LNilType:
		// Keep the heuristic category.
	default:
		logger.Error().Str("type", lval.Type().String()).
			Msg("Lua function returned something other than a string or nil")
	}

	return nil
}

func (h *Host) handleAfterMessageStored(msg event.MessageMetadata) {
	logger, ls, mm, ok := h.prepareFuncCall("after.message_stored")
	if !ok {
		return
	}
	defer h.pool.putState(ls)

	if err := ls.CallByParam(
		lua.P{Fn: mm.After.MessageStored, NRet: 0, Protect: true},
		wrapMessageMetadata(ls, &msg),
	); err != nil {
		logger.Error().Err(err).Msg("Failed to call Lua function")
	}
}

func (h *Host) handleAfterAccountSynced(sum event.SyncSummary) {
	logger, ls, mm, ok := h.prepareFuncCall("after.account_synced")
	if !ok {
		return
	}
	defer h.pool.putState(ls)

	if err := ls.CallByParam(
		lua.P{Fn: mm.After.AccountSynced, NRet: 0, Protect: true},
		wrapSyncSummary(ls, &sum),
	); err != nil {
		logger.Error().Err(err).Msg("Failed to call Lua function")
	}
}

func (h *Host) handleAfterMessageSent(sent event.SentMessage) {
	logger, ls, mm, ok := h.prepareFuncCall("after.message_sent")
	if !ok {
		return
	}
	defer h.pool.putState(ls)

	if err := ls.CallByParam(
		lua.P{Fn: mm.After.MessageSent, NRet: 0, Protect: true},
		wrapSentMessage(ls, &sent),
	); err != nil {
		logger.Error().Err(err).Msg("Failed to call Lua function")
	}
}

// prepareFuncCall checks out an LState and its mailmount object for the named event.
func (h *Host) prepareFuncCall(funcName string) (
	logger zerolog.Logger, ls *lua.LState, mm *Mailmount, ok bool,
) {
	logger = h.logContext.Str("event", funcName).Logger()

	ls, err := h.pool.getState()
	if err != nil {
		logger.Error().Err(err).Msg("Failed to get Lua state instance from pool")
		return logger, nil, nil, false
	}

	mm, err = getMailmount(ls)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to obtain Lua mailmount object")
		h.pool.putState(ls)
		return logger, nil, nil, false
	}

	return logger, ls, mm, true
}
