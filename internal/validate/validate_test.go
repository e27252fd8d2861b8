package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signup struct {
	Name      string `json:"name" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
	Username  string `json:"username" validate:"omitempty,username"`
}

type links struct {
	Social map[string]string `json:"socialMediaLinks" validate:"dive,keys,oneof=instagram tiktok strava youtube,endkeys"`
}

func TestStructValid(t *testing.T) {
	err := Struct(signup{Name: "Ana", Email: "ana@x.com", Password: "secret1", Password2: "secret1"})
	require.NoError(t, err)
}

func TestStructListsEveryField(t *testing.T) {
	err := Struct(signup{Email: "nope", Password: "abc", Password2: "abd", Username: "a!"})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))

	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "must be a valid email", fields["email"])
	assert.Equal(t, "must be at least 6 characters", fields["password"])
	assert.Equal(t, "must match password", fields["password2"])
	assert.Contains(t, fields, "username")
}

func TestStructMapKeys(t *testing.T) {
	require.NoError(t, Struct(links{Social: map[string]string{"strava": "https://strava.com/a"}}))

	err := Struct(links{Social: map[string]string{"myspace": "x"}})
	var verr *Error
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 1)
}

func TestIsUsername(t *testing.T) {
	assert.True(t, IsUsername("ana_99"))
	assert.False(t, IsUsername("ab"))
	assert.False(t, IsUsername("this_is_way_too_long_name"))
	assert.False(t, IsUsername("has space"))
}

func TestFields(t *testing.T) {
	err := Fields("date", "is invalid")
	require.Len(t, err.Fields, 1)
	assert.Equal(t, "validation failed: date: is invalid", err.Error())
}
