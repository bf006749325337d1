// Package guard implementa el switch anti-recursión compartido entre el producer
// (que lo consulta antes de emitir) y el engine de sincronización (que lo apaga
// mientras aplica un evento remoto).
package guard

import (
	"sync"
	"sync/atomic"
)

// Toggle es un flag atómico habilitado/deshabilitado.
// Se construye explícitamente y se pasa por handle; no hay singleton.
type Toggle struct {
	enabled atomic.Bool
}

// New crea un Toggle en el estado indicado.
func New(enabled bool) *Toggle {
	t := &Toggle{}
	t.enabled.Store(enabled)
	return t
}

// Enable habilita la emisión de eventos.
func (t *Toggle) Enable() { t.enabled.Store(true) }

// Disable deshabilita la emisión de eventos.
func (t *Toggle) Disable() { t.enabled.Store(false) }

// Enabled indica si el producer debe emitir ahora.
func (t *Toggle) Enabled() bool { return t.enabled.Load() }

// Acquire deshabilita el toggle y devuelve la función que lo restaura.
//
// Sólo la llamada que efectivamente pasó de habilitado a deshabilitado vuelve a
// habilitar en el release. Si ya estaba deshabilitado (pausa del operador u otro
// apply concurrente) el release no toca nada. Con llamadas concurrentes, el primer
// release re-habilita aunque otro apply siga en curso: carrera aceptada, a lo sumo
// se emite un evento redundante que los demás nodos aplican como no-op.
func (t *Toggle) Acquire() (release func()) {
	owned := t.enabled.CompareAndSwap(true, false)
	var once sync.Once
	return func() {
		once.Do(func() {
			if owned {
				t.enabled.Store(true)
			}
		})
	}
}
