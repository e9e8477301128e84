// Package autowire fills exported fields tagged `infra:"dep:<component>"` from the container.
// A trailing '?' marks the dependency optional. Injected names are also appended to the
// component's runtime dependencies so start/stop order follows the wiring.
package autowire

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/timelyrain333/bifang-sub000/infra/application/core"
)

type runtimeDepAdder interface {
	AddDependencies(...string)
}

func InjectAll(c *core.Container) error {
	registered := c.ListRegistered()
	names := make([]string, 0, len(registered))
	for n := range registered {
		names = append(names, n)
	}
	sort.Strings(names)
	var errs []string
	for _, name := range names {
		if err := Inject(c, registered[name]); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("autowire errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func Inject(c *core.Container, comp core.Component) error {
	val := reflect.ValueOf(comp)
	if comp == nil || val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		return nil
	}
	val = val.Elem()
	adder, _ := comp.(runtimeDepAdder)
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("infra")
		if field.PkgPath != "" || !strings.HasPrefix(tag, "dep:") {
			continue
		}
		name := strings.TrimSpace(strings.TrimPrefix(tag, "dep:"))
		optional := strings.HasSuffix(name, "?")
		name = strings.TrimSuffix(name, "?")
		if name == "" {
			continue
		}
		resolved, err := c.Resolve(name)
		if err != nil {
			if optional {
				continue
			}
			return fmt.Errorf("resolve %s failed: %w", name, err)
		}
		if err := assign(val.Field(i), resolved); err != nil {
			return fmt.Errorf("assign %s -> field %s failed: %w", name, field.Name, err)
		}
		if adder != nil {
			adder.AddDependencies(name)
		}
	}
	return nil
}

func assign(dst reflect.Value, src interface{}) error {
	if !dst.CanSet() {
		return fmt.Errorf("destination not settable")
	}
	sv := reflect.ValueOf(src)
	switch {
	case dst.Kind() == reflect.Interface && sv.Type().Implements(dst.Type()):
		dst.Set(sv)
	case sv.Type().AssignableTo(dst.Type()):
		dst.Set(sv)
	default:
		return fmt.Errorf("incompatible types: %s -> %s", sv.Type(), dst.Type())
	}
	return nil
}
