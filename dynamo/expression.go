package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// expr accumulates placeholder names and values for one request.
type expr struct {
	names   map[string]string
	values  map[string]types.AttributeValue
	sets    []string
	removes []string
	conds   []string
	n       int
}

func newExpr() *expr {
	return &expr{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

// name returns a placeholder for attribute a, reusing it if already bound.
func (e *expr) name(a string) string {
	for k, v := range e.names {
		if v == a && strings.HasPrefix(k, "#a") {
			return k
		}
	}
	k := fmt.Sprintf("#a%d", e.n)
	e.n++
	e.names[k] = a
	return k
}

// value binds v to a new placeholder.
func (e *expr) value(v types.AttributeValue) string {
	k := fmt.Sprintf(":v%d", e.n)
	e.n++
	e.values[k] = v
	return k
}

func (e *expr) set(attr string, v types.AttributeValue) {
	e.sets = append(e.sets, fmt.Sprintf("%s = %s", e.name(attr), e.value(v)))
}

func (e *expr) remove(attr string) {
	e.removes = append(e.removes, e.name(attr))
}

func (e *expr) condition(c string) {
	e.conds = append(e.conds, c)
}

// equals adds a condition that attr currently holds v.
func (e *expr) equals(attr string, v types.AttributeValue) {
	e.condition(fmt.Sprintf("%s = %s", e.name(attr), e.value(v)))
}

func (e *expr) exists(attr string) {
	e.condition(fmt.Sprintf("attribute_exists(%s)", e.name(attr)))
}

// notExists adds a condition that attr is absent, or that any of the
// alternative clauses holds.
func (e *expr) notExists(attr string, alternatives ...string) {
	c := fmt.Sprintf("attribute_not_exists(%s)", e.name(attr))
	if len(alternatives) > 0 {
		c = "(" + strings.Join(append([]string{c}, alternatives...), " OR ") + ")"
	}
	e.condition(c)
}

// ttl binds the #ttl and :now placeholders used by the soft-delete conditions.
func (e *expr) ttl(now types.AttributeValue) {
	e.names["#ttl"] = TTLAttribute
	e.values[":now"] = now
}

func (e *expr) hasUpdate() bool { return len(e.sets) > 0 || len(e.removes) > 0 }

func (e *expr) updateExpression() *string {
	var parts []string
	if len(e.sets) > 0 {
		parts = append(parts, "SET "+strings.Join(e.sets, ", "))
	}
	if len(e.removes) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(e.removes, ", "))
	}
	if len(parts) == 0 {
		return nil
	}
	return aws.String(strings.Join(parts, " "))
}

func (e *expr) conditionExpression() *string {
	if len(e.conds) == 0 {
		return nil
	}
	return aws.String(strings.Join(e.conds, " AND "))
}

func (e *expr) attributeNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expr) attributeValues() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}

// marshalValue converts a column value; unsupported types are rejected.
func marshalValue(v any) (types.AttributeValue, error) {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value %T: %w", v, err)
	}
	return av, nil
}
