package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionKind names a browser-side callback
type ActionKind string

const (
	ActionLightboxContent ActionKind = "lightboxContent"
	ActionRedirect        ActionKind = "redirect"
	ActionAjaxContent     ActionKind = "ajaxContent"
)

// Directive is what the tracking endpoint returns to the browser
type Directive struct {
	Action        ActionKind             `json:"action"`
	Configuration map[string]interface{} `json:"configuration"`
}

// Action is one configured variant
type Action interface {
	Kind() ActionKind
	Directive() Directive
}

// LightboxContent opens a content element in a lightbox after a delay in ms
type LightboxContent struct {
	ContentElement int
	Delay          int
}

func (a LightboxContent) Kind() ActionKind { return ActionLightboxContent }

func (a LightboxContent) Directive() Directive {
	return Directive{
		Action: ActionLightboxContent,
		Configuration: map[string]interface{}{
			"contentElement": a.ContentElement,
			"delay":          a.Delay,
		},
	}
}

// Redirect sends the browser to URI
type Redirect struct {
	URI string
}

func (a Redirect) Kind() ActionKind { return ActionRedirect }

func (a Redirect) Directive() Directive {
	return Directive{
		Action:        ActionRedirect,
		Configuration: map[string]interface{}{"uri": a.URI},
	}
}

// AjaxContent loads a content element into the DOM node matched by DOMSelection
type AjaxContent struct {
	ContentElement int
	DOMSelection   string
}

func (a AjaxContent) Kind() ActionKind { return ActionAjaxContent }

func (a AjaxContent) Directive() Directive {
	return Directive{
		Action: ActionAjaxContent,
		Configuration: map[string]interface{}{
			"contentElement": a.ContentElement,
			"domselection":   a.DOMSelection,
		},
	}
}

// RedirectDirective is the answer to a resolved redirect hash
func RedirectDirective(uri string) Directive {
	return Redirect{URI: uri}.Directive()
}

type actionBuilder func(params map[string]interface{}) (Action, error)

var builders = map[ActionKind]actionBuilder{
	ActionLightboxContent: func(params map[string]interface{}) (Action, error) {
		element, err := intParam(params, "contentElement", true)
		if err != nil {
			return nil, err
		}
		delay, err := intParam(params, "delay", false)
		if err != nil {
			return nil, err
		}
		return LightboxContent{ContentElement: element, Delay: delay}, nil
	},
	ActionRedirect: func(params map[string]interface{}) (Action, error) {
		uri, err := stringParam(params, "uri")
		if err != nil {
			return nil, err
		}
		return Redirect{URI: uri}, nil
	},
	ActionAjaxContent: func(params map[string]interface{}) (Action, error) {
		element, err := intParam(params, "contentElement", true)
		if err != nil {
			return nil, err
		}
		selection, err := stringParam(params, "domselection")
		if err != nil {
			return nil, err
		}
		return AjaxContent{ContentElement: element, DOMSelection: selection}, nil
	},
}

// BuildAction turns a configured kind and its params into an Action
func BuildAction(kind ActionKind, params map[string]interface{}) (Action, error) {
	build, ok := builders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown workflow action %q", kind)
	}
	action, err := build(params)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", kind, err)
	}
	return action, nil
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", key)
	}
	value := strings.TrimSpace(fmt.Sprint(raw))
	if value == "" {
		return "", fmt.Errorf("parameter %q must not be empty", key)
	}
	return value, nil
}

func intParam(params map[string]interface{}, key string, required bool) (int, error) {
	raw, ok := params[key]
	if !ok {
		if required {
			return 0, fmt.Errorf("missing parameter %q", key)
		}
		return 0, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("parameter %q is not a number: %w", key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("parameter %q has unsupported type %T", key, raw)
}
