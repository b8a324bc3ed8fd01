package datastore

import (
	"fmt"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/iudanet/meetsync/internal/models"
)

// filterCache кеширует скомпилированные выражения фильтров
type filterCache struct {
	programs map[string]*exprvm.Program
	mu       sync.Mutex
}

func newFilterCache() *filterCache {
	return &filterCache{programs: make(map[string]*exprvm.Program)}
}

func (c *filterCache) loadOrCompile(expression string) (*exprvm.Program, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if program, ok := c.programs[expression]; ok {
		return program, nil
	}

	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter %q: %w", expression, err)
	}
	c.programs[expression] = program
	return program, nil
}

// FilterExpr возвращает объекты коллекции, для которых выражение истинно.
// Поля объекта доступны в выражении по именам JSON, например
// `is_active && "2" in map(groups_id, string(#))`.
func (s *Store) FilterExpr(collection, expression string) ([]models.Element, error) {
	if expression == "" {
		return s.GetAll(collection), nil
	}

	program, err := s.filters.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}

	var evalErr error
	result := s.Filter(collection, func(e models.Element) bool {
		if evalErr != nil {
			return false
		}
		fields, err := e.Fields()
		if err != nil {
			evalErr = err
			return false
		}
		out, err := exprlang.Run(program, fields)
		if err != nil {
			evalErr = fmt.Errorf("failed to evaluate filter on %s: %w", e.Key(), err)
			return false
		}
		matched, ok := out.(bool)
		if !ok {
			evalErr = fmt.Errorf("filter %q returned %T, want bool", expression, out)
			return false
		}
		return matched
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return result, nil
}
