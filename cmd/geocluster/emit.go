package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/LiuPacific/geoserver/internal/cluster/bus"
	"github.com/LiuPacific/geoserver/internal/cluster/events"
	"github.com/LiuPacific/geoserver/internal/cluster/guard"
	"github.com/LiuPacific/geoserver/internal/cluster/producer"
	"github.com/LiuPacific/geoserver/internal/config"
	"github.com/LiuPacific/geoserver/internal/domain/catalog"
	"github.com/LiuPacific/geoserver/internal/observability/logger"
)

// eventFile es el formato de --file: un ChangeEvent sin id ni origin.
type eventFile struct {
	Type          events.Type     `json:"type"`
	EntityKind    catalog.Kind    `json:"entityKind"`
	Source        json.RawMessage `json:"source"`
	PropertyNames []string        `json:"propertyNames,omitempty"`
	OldValues     []any           `json:"oldValues,omitempty"`
	NewValues     []any           `json:"newValues,omitempty"`
}

func parseEventFile(data []byte) (*events.ChangeEvent, error) {
	var f eventFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	src, err := catalog.Unmarshal(f.EntityKind, f.Source)
	if err != nil {
		return nil, err
	}
	ev := &events.ChangeEvent{
		Type:          f.Type,
		Source:        src,
		PropertyNames: f.PropertyNames,
		OldValues:     f.OldValues,
		NewValues:     f.NewValues,
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func newEmitCmd(gf *globalFlags) *cobra.Command {
	var (
		file    string
		origin  string
		url     string
		via     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publica un evento de catálogo en el cluster (vía HTTP a un nodo, o directo al bus redis)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file es requerido")
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			ev, err := parseEventFile(data)
			if err != nil {
				return err
			}
			cfg, err := gf.load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			switch via {
			case "http":
				if url == "" {
					url = "http://" + hostPort(cfg.Server.Addr)
				}
				id, err := emitHTTP(ctx, url, events.NewCodec(cfg.Bus.SigningKey), origin, ev)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			case "bus":
				id, err := emitBus(ctx, cfg, origin, ev)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			}
			return fmt.Errorf("--via %q: want http|bus", via)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "JSON con el evento (type, entityKind, source, propertyNames, oldValues, newValues)")
	cmd.Flags().StringVar(&origin, "origin", "cli", "Origin del envelope; distinto del node.id de los nodos destino")
	cmd.Flags().StringVar(&url, "url", "", "URL base del nodo (default: derivada de server.addr)")
	cmd.Flags().StringVar(&via, "via", "http", "Transporte: http|bus (bus sólo con bus.kind=redis)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Timeout total")
	return cmd
}

// emitHTTP codifica el evento y lo envía a /v1/cluster/publish de un nodo.
func emitHTTP(ctx context.Context, baseURL string, codec *events.Codec, origin string, ev *events.ChangeEvent) (string, error) {
	env, payload, err := codec.Encode(origin, ev)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+bus.PublishPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("emit fallo: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return env.ID, nil
}

// emitBus publica directo en redis con el producer, sin pasar por un nodo.
func emitBus(ctx context.Context, cfg *config.Config, origin string, ev *events.ChangeEvent) (string, error) {
	if cfg.Bus.Kind != "redis" {
		return "", fmt.Errorf("--via bus requiere bus.kind=redis (actual: %s)", cfg.Bus.Kind)
	}
	b, err := bus.NewRedis(ctx, bus.RedisConfig{
		Addr:     cfg.Bus.Redis.Addr,
		Password: cfg.Bus.Redis.Password,
		DB:       cfg.Bus.Redis.DB,
		Channel:  cfg.Bus.Redis.Channel,
	})
	if err != nil {
		return "", err
	}
	defer b.Close()

	p, err := producer.New(producer.Options{
		Bus:    b,
		Codec:  events.NewCodec(cfg.Bus.SigningKey),
		Guard:  guard.New(true),
		NodeID: origin,
		Logger: logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, NodeID: origin}),
	})
	if err != nil {
		return "", err
	}
	env, err := p.Publish(ctx, ev)
	if err != nil {
		return "", err
	}
	return env.ID, nil
}

// hostPort convierte ":8080" en "localhost:8080".
func hostPort(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
