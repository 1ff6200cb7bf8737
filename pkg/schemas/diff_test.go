package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
)

func mustLoad(t *testing.T, sdl string) *ast.Schema {
	t.Helper()
	schema, errs := LoadSDL(sdl)
	require.Empty(t, errs)
	return schema
}

func findChange(changes []Change, path string, changeType ChangeType) *Change {
	for i := range changes {
		if changes[i].Path == path && changes[i].Type == changeType {
			return &changes[i]
		}
	}
	return nil
}

func TestDiff(t *testing.T) {
	before := mustLoad(t, `
type Query {
  user(id: ID!): User
  users(first: Int = 10): [User!]!
  legacy: String
}

type User {
  id: ID!
  name: String!
  role: Role
}

enum Role {
  ADMIN
  MEMBER
}

union Search = User

input Filter {
  name: String
}
`)

	// identical schemas have no changes
	assert.Empty(t, Diff(before, before))

	// initial publish has no changes
	assert.Empty(t, Diff(nil, before))

	after := mustLoad(t, `
type Query {
  user(id: ID!, locale: String!): User
  users(first: Int = 20, after: String): [User!]!
  search(text: String): [Search]
}

type User {
  id: ID!
  name: String
  email: String @deprecated(reason: "no longer collected")
  role: Role!
}

enum Role {
  ADMIN
  MEMBER
  GUEST
}

type Team {
  id: ID!
}

union Search = User | Team

input Filter {
  name: String
  active: Boolean!
}
`)

	changes := Diff(before, after)

	cases := []struct {
		path        string
		changeType  ChangeType
		criticality Criticality
	}{
		{"Query.legacy", ChangeFieldRemoved, CriticalityBreaking},
		{"Query.search", ChangeFieldAdded, CriticalitySafe},
		{"Query.user.locale", ChangeFieldArgumentAdded, CriticalityBreaking},
		{"Query.users.after", ChangeFieldArgumentAdded, CriticalitySafe},
		{"Query.users.first", ChangeFieldArgumentDefaultChanged, CriticalityDangerous},
		{"User.name", ChangeFieldTypeChanged, CriticalityBreaking},
		{"User.role", ChangeFieldTypeChanged, CriticalitySafe},
		{"User.email", ChangeFieldAdded, CriticalitySafe},
		{"Role.GUEST", ChangeEnumValueAdded, CriticalityDangerous},
		{"Team", ChangeTypeAdded, CriticalitySafe},
		{"Search", ChangeUnionMemberAdded, CriticalityDangerous},
		{"Filter.active", ChangeInputFieldAdded, CriticalityBreaking},
	}
	for _, c := range cases {
		change := findChange(changes, c.path, c.changeType)
		if assert.NotNil(t, change, "missing change %s %s", c.changeType, c.path) {
			assert.Equal(t, c.criticality, change.Criticality, c.path)
		}
	}

	// going back removes things
	changes = Diff(after, before)
	assert.Equal(t, CriticalityBreaking, findChange(changes, "Team", ChangeTypeRemoved).Criticality)
	assert.Equal(t, CriticalityBreaking, findChange(changes, "Role.GUEST", ChangeEnumValueRemoved).Criticality)
	assert.Equal(t, CriticalityBreaking, findChange(changes, "Query.user.locale", ChangeFieldArgumentRemoved).Criticality)
	assert.Equal(t, CriticalityBreaking, findChange(changes, "Filter.active", ChangeInputFieldRemoved).Criticality)
	assert.Equal(t, "Field 'legacy' was added to object type 'Query'", findChange(changes, "Query.legacy", ChangeFieldAdded).Message)
}

func TestDiffDeprecation(t *testing.T) {
	before := mustLoad(t, `type Query { a: String b: String @deprecated(reason: "old") }`)
	after := mustLoad(t, `type Query { a: String @deprecated b: String @deprecated(reason: "new") }`)

	changes := Diff(before, after)
	require.Len(t, changes, 2)
	assert.Equal(t, CriticalitySafe, findChange(changes, "Query.a", ChangeFieldDeprecationAdded).Criticality)
	assert.Equal(t, CriticalitySafe, findChange(changes, "Query.b", ChangeFieldDeprecationReasonChanged).Criticality)

	changes = Diff(after, before)
	assert.NotNil(t, findChange(changes, "Query.a", ChangeFieldDeprecationRemoved))
}

func TestSortChanges(t *testing.T) {
	changes := []Change{
		{Criticality: CriticalitySafe, Path: "A"},
		{Criticality: CriticalityBreaking, Path: "B"},
		{Criticality: CriticalityDangerous, Path: "C"},
		{Criticality: CriticalityBreaking, Path: "A"},
	}
	SortChanges(changes)
	assert.Equal(t, "A", changes[0].Path)
	assert.Equal(t, CriticalityBreaking, changes[1].Criticality)
	assert.Equal(t, CriticalityDangerous, changes[2].Criticality)
	assert.Equal(t, CriticalitySafe, changes[3].Criticality)
}
