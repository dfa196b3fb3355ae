package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy(t *testing.T) {
	falsy := []Value{
		Null,
		Bool(false),
		Number(0),
		String(""),
		ListOf(),
		MapOf(map[string]Value{}),
	}
	for _, v := range falsy {
		assert.False(t, v.Truthy(), v.Display())
	}

	truthy := []Value{
		Bool(true),
		Number(-1),
		Number(0.5),
		String("0"),
		ListOf(Null),
		MapOf(map[string]Value{"k": Null}),
		Opaque(struct{}{}),
	}
	for _, v := range truthy {
		assert.True(t, v.Truthy(), v.Display())
	}
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "2", Number(2).Display())
	assert.Equal(t, "2.5", Number(2.5).Display())
	assert.Equal(t, "-3", Number(-3).Display())
	assert.Equal(t, "hi", String("hi").Display())
	assert.Equal(t, "true", Bool(true).Display())
	assert.Equal(t, "null", Null.Display())
	assert.Equal(t, `[1,"a"]`, ListOf(Number(1), String("a")).Display())
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Number(1), Number(1)))
	assert.True(t, Equal(Null, Null))
	assert.True(t, Equal(ListOf(Number(1)), ListOf(Number(1))))
	assert.True(t, Equal(
		MapOf(map[string]Value{"a": Number(1)}),
		MapOf(map[string]Value{"a": Number(1)})))

	// number and its string rendering are never equal
	assert.False(t, Equal(Number(123), String("123")))
	assert.False(t, Equal(Null, Number(0)))
	assert.False(t, Equal(Bool(false), Number(0)))
	assert.False(t, Equal(ListOf(Number(1)), ListOf(Number(2))))
}

func TestFromGoToGo(t *testing.T) {
	v := FromGo(map[string]interface{}{
		"n":  float64(3),
		"s":  "x",
		"xs": []interface{}{true, nil},
	})
	assert.Equal(t, KindMap, v.Kind)
	assert.Equal(t, KindList, v.Dict["xs"].Kind)

	back := v.ToGo().(map[string]interface{})
	assert.Equal(t, int64(3), back["n"])
	assert.Equal(t, "x", back["s"])
}
