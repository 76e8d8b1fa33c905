package bundle

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	lua "github.com/Shopify/go-lua"
)

const bundleGlobal = "__bundle"

// maxTableDepth bounds the nesting of tables converted to Go values.
// Self-referencing tables hit it instead of recursing forever.
const maxTableDepth = 64

var errTableDepth = fmt.Errorf("table nesting exceeds %d levels", maxTableDepth)

// Lua executes module scripts with an embedded Lua interpreter. Each module
// gets its own interpreter, kept alive for the module's init hooks.
type Lua struct{}

// NewLua returns a Lua runtime.
func NewLua() Lua {
	return Lua{}
}

// luaModule is one interpreter and the lock serializing access to it.
type luaModule struct {
	mu    sync.Mutex
	state *lua.State
}

func (Lua) Execute(ctx context.Context, src Source, host HostContext) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	state := lua.NewState()
	lua.OpenLibraries(state)
	registerHost(state, host)

	if err := lua.LoadBuffer(state, string(src.Script), src.Name, ""); err != nil {
		return nil, fmt.Errorf("load script %s: %w", src.Name, err)
	}
	if err := state.ProtectedCall(0, 1, 0); err != nil {
		return nil, fmt.Errorf("run script %s: %w", src.Name, err)
	}
	if state.TypeOf(-1) != lua.TypeTable {
		state.Pop(1)
		return nil, fmt.Errorf("run script %s: script must return a table", src.Name)
	}
	state.SetGlobal(bundleGlobal)

	module := &luaModule{state: state}
	state.Global(bundleGlobal)
	defer state.Pop(1)

	exports, err := tableField(state, -1, "exports")
	if err != nil {
		return nil, fmt.Errorf("module %s exports: %w", src.Name, err)
	}
	services, err := tableField(state, -1, "services")
	if err != nil {
		return nil, fmt.Errorf("module %s services: %w", src.Name, err)
	}
	out := &Bundle{
		Name:     src.Name,
		Exports:  Exports(exports),
		Services: services,
	}
	lang, err := messagesField(state, -1, "lang")
	if err != nil {
		return nil, fmt.Errorf("module %s lang: %w", src.Name, err)
	}
	out.Lang = lang

	components, err := componentsField(state, -1, module)
	if err != nil {
		return nil, fmt.Errorf("module %s components: %w", src.Name, err)
	}
	out.Components = components
	return out, nil
}

func registerHost(state *lua.State, host HostContext) {
	state.NewTable()
	state.PushString(host.BaseAPI)
	state.SetField(-2, "base_api")
	state.PushString(host.Module)
	state.SetField(-2, "module")
	state.PushGoFunction(func(l *lua.State) int {
		host.Logf("%s", lua.CheckString(l, 1))
		return 0
	})
	state.SetField(-2, "log")
	state.PushGoFunction(func(l *lua.State) int {
		l.PushString(host.Translate(lua.CheckString(l, 1)))
		return 1
	})
	state.SetField(-2, "translate")
	state.SetGlobal("host")
}

func tableField(state *lua.State, index int, name string) (map[string]any, error) {
	state.Field(index, name)
	defer state.Pop(1)
	return tableToMap(state, -1, 0)
}

func messagesField(state *lua.State, index int, name string) (Messages, error) {
	raw, err := tableField(state, index, name)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(Messages, len(raw))
	for locale, value := range raw {
		tree, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("locale %q must be a table", locale)
		}
		out[locale] = tree
	}
	return out, nil
}

func componentsField(state *lua.State, index int, module *luaModule) ([]ComponentDef, error) {
	state.Field(index, "components")
	defer state.Pop(1)
	if state.TypeOf(-1) != lua.TypeTable {
		return nil, nil
	}

	var ids []string
	table := state.AbsIndex(-1)
	state.PushNil()
	for state.Next(table) {
		if state.TypeOf(-2) == lua.TypeString {
			id, _ := state.ToString(-2)
			ids = append(ids, id)
		}
		state.Pop(1)
	}
	sort.Strings(ids)

	defs := make([]ComponentDef, 0, len(ids))
	for _, id := range ids {
		state.Field(table, id)
		if state.TypeOf(-1) != lua.TypeTable {
			state.Pop(1)
			return nil, fmt.Errorf("component %q must be a table", id)
		}
		def := ComponentDef{ID: id}
		state.Field(-1, "template")
		def.Template, _ = state.ToString(-1)
		state.Pop(1)

		i18n, err := messagesField(state, -1, "i18n")
		if err != nil {
			state.Pop(1)
			return nil, fmt.Errorf("component %q i18n: %w", id, err)
		}
		def.I18n = i18n

		state.Field(-1, "init")
		if state.IsFunction(-1) {
			def.Init = module.hook(id)
		}
		state.Pop(2)
		defs = append(defs, def)
	}
	return defs, nil
}

// hook calls components[id].init(host) inside the module interpreter.
func (m *luaModule) hook(id string) Hook {
	return func(ctx context.Context, host HostContext) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.mu.Lock()
		defer m.mu.Unlock()

		state := m.state
		top := state.Top()
		defer state.SetTop(top)

		state.Global(bundleGlobal)
		state.Field(-1, "components")
		state.Field(-1, id)
		state.Field(-1, "init")
		if !state.IsFunction(-1) {
			return fmt.Errorf("component %s: init is not a function", id)
		}
		registerHost(state, host)
		state.Global("host")
		if err := state.ProtectedCall(1, 0, 0); err != nil {
			return fmt.Errorf("component %s init: %w", id, err)
		}
		return nil
	}
}

func tableToMap(state *lua.State, index int, depth int) (map[string]any, error) {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output, nil
	}
	if depth >= maxTableDepth || !state.CheckStack(3) {
		return nil, errTableDepth
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			value, err := luaToGo(state, -1, depth+1)
			if err != nil {
				state.Pop(2)
				return nil, err
			}
			output[key] = value
		}
		state.Pop(1)
	}
	return output, nil
}

func luaToGo(state *lua.State, index int, depth int) (any, error) {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value, nil
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		if math.Mod(value, 1) == 0 {
			return int(value), nil
		}
		return value, nil
	case lua.TypeBoolean:
		return state.ToBoolean(index), nil
	case lua.TypeTable:
		return tableToGo(state, index, depth)
	case lua.TypeUserData:
		return state.ToUserData(index), nil
	default:
		return nil, nil
	}
}

func tableToGo(state *lua.State, index int, depth int) (any, error) {
	if depth >= maxTableDepth || !state.CheckStack(3) {
		return nil, errTableDepth
	}
	index = state.AbsIndex(index)
	maxIndex := 0
	count := 0
	isArray := true
	state.PushNil()
	for state.Next(index) {
		count++
		if isArray {
			idx, ok := state.ToInteger(-2)
			if state.TypeOf(-2) != lua.TypeNumber || !ok || idx <= 0 {
				isArray = false
			} else if idx > maxIndex {
				maxIndex = idx
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			value, err := luaToGo(state, -1, depth+1)
			state.Pop(1)
			if err != nil {
				return nil, err
			}
			result = append(result, value)
		}
		return result, nil
	}
	return tableToMap(state, index, depth)
}
