package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/LiuPacific/geoserver/internal/domain/catalog"
)

// ErrSignature indica un payload sin firma válida cuando el codec exige firma.
var ErrSignature = errors.New("events: invalid signature")

// Envelope es la forma serializada de un ChangeEvent en el bus.
type Envelope struct {
	ID            string          `json:"id"`
	Origin        string          `json:"origin"`
	Type          Type            `json:"type"`
	EntityKind    catalog.Kind    `json:"entityKind"`
	Source        json.RawMessage `json:"source"`
	PropertyNames []string        `json:"propertyNames,omitempty"`
	OldValues     []any           `json:"oldValues,omitempty"`
	NewValues     []any           `json:"newValues,omitempty"`
	TsUnix        int64           `json:"tsUnix"`
}

// envelopeClaims embebe el envelope en un JWT HS256 cuando hay clave compartida.
type envelopeClaims struct {
	Event Envelope `json:"evt"`
	jwt.RegisteredClaims
}

// Codec serializa eventos hacia/desde el bus.
// Con SigningKey vacío el payload es JSON plano; con clave, es un JWT compacto
// y los payloads sin firma se rechazan.
type Codec struct {
	SigningKey []byte
	Now        func() time.Time
}

// NewCodec crea un codec. key puede ser vacío.
func NewCodec(key string) *Codec {
	c := &Codec{Now: time.Now}
	if key != "" {
		c.SigningKey = []byte(key)
	}
	return c
}

// Signed indica si el codec firma/verifica.
func (c *Codec) Signed() bool { return len(c.SigningKey) > 0 }

// Encode arma el envelope (id nuevo, origin, timestamp) y lo serializa.
func (c *Codec) Encode(origin string, ev *ChangeEvent) (*Envelope, []byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, nil, err
	}
	src, err := catalog.Marshal(ev.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("encode source: %w", err)
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	env := &Envelope{
		ID:            uuid.NewString(),
		Origin:        origin,
		Type:          ev.Type,
		EntityKind:    ev.Source.Kind(),
		Source:        src,
		PropertyNames: ev.PropertyNames,
		OldValues:     ev.OldValues,
		NewValues:     ev.NewValues,
		TsUnix:        now().Unix(),
	}
	data, err := c.Marshal(env)
	if err != nil {
		return nil, nil, err
	}
	return env, data, nil
}

// Marshal serializa un envelope ya armado (firmándolo si corresponde).
func (c *Codec) Marshal(env *Envelope) ([]byte, error) {
	if !c.Signed() {
		return json.Marshal(env)
	}
	claims := envelopeClaims{
		Event: *env,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       env.ID,
			Issuer:   env.Origin,
			IssuedAt: jwt.NewNumericDate(time.Unix(env.TsUnix, 0)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("sign envelope: %w", err)
	}
	return []byte(s), nil
}

// Unmarshal decodifica (y verifica) un payload del bus a Envelope.
func (c *Codec) Unmarshal(data []byte) (*Envelope, error) {
	if !c.Signed() {
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &env, nil
	}
	var claims envelopeClaims
	_, err := jwt.ParseWithClaims(string(data), &claims, func(*jwt.Token) (any, error) {
		return c.SigningKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignature, err)
	}
	if claims.Issuer != claims.Event.Origin || claims.ID != claims.Event.ID {
		return nil, fmt.Errorf("%w: claims do not match envelope", ErrSignature)
	}
	return &claims.Event, nil
}

// Decode devuelve el envelope y el ChangeEvent reconstruido.
func (c *Codec) Decode(data []byte) (*Envelope, *ChangeEvent, error) {
	env, err := c.Unmarshal(data)
	if err != nil {
		return nil, nil, err
	}
	ev, err := env.Event()
	if err != nil {
		return env, nil, err
	}
	return env, ev, nil
}

// Event reconstruye el ChangeEvent a partir del envelope.
func (env *Envelope) Event() (*ChangeEvent, error) {
	if env.ID == "" {
		return nil, fmt.Errorf("%w: envelope without id", ErrMalformed)
	}
	src, err := catalog.Unmarshal(env.EntityKind, env.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev := &ChangeEvent{
		Type:          env.Type,
		Source:        src,
		PropertyNames: env.PropertyNames,
		OldValues:     env.OldValues,
		NewValues:     env.NewValues,
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
