package cachepool

import "github.com/unkn0wn-root/cachepool/hooks"

// Hooks receives high-signal events. See package hooks.
type Hooks = hooks.Hooks

type NopHooks = hooks.Nop
