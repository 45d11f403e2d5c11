package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/tulusdeveloper/new-medical-ui/internal/domain"
	"github.com/tulusdeveloper/new-medical-ui/internal/platform/apperr"
)

// Resource is the typed adapter for one collection endpoint, e.g.
// "laboratory/lab-test-classes/". All calls are guarded by Authenticated.
type Resource[T any] struct {
	client *Client
	path   string
}

func NewResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{client: c, path: path}
}

func (r *Resource[T]) Path() string { return r.path }

func (r *Resource[T]) itemPath(id domain.ID) string {
	return r.path + id.String() + "/"
}

// List fetches the collection. Whatever envelope the endpoint uses, the
// result is a plain ordered slice; an empty collection is a non-nil slice.
func (r *Resource[T]) List(ctx context.Context) ([]T, error) {
	op := "GET " + r.path
	return Authenticated(r.client, op, func() ([]T, error) {
		body, err := r.client.Do(ctx, http.MethodGet, r.path, nil)
		if err != nil {
			return nil, err
		}
		items, err := decodeList[T](body)
		if err != nil {
			return nil, apperr.New(apperr.KindRequestFailed, op, err)
		}
		return items, nil
	})
}

// Count returns the number of records in the collection.
func (r *Resource[T]) Count(ctx context.Context) (int, error) {
	items, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (r *Resource[T]) Get(ctx context.Context, id domain.ID) (T, error) {
	op := "GET " + r.itemPath(id)
	return Authenticated(r.client, op, func() (T, error) {
		var out T
		body, err := r.client.Do(ctx, http.MethodGet, r.itemPath(id), nil)
		if err != nil {
			return out, err
		}
		return decodeItem(op, body, out)
	})
}

// Create posts v and returns the server's copy, which carries the
// assigned id. If the server answers with an empty body, v is returned.
func (r *Resource[T]) Create(ctx context.Context, v T) (T, error) {
	op := "POST " + r.path
	return Authenticated(r.client, op, func() (T, error) {
		body, err := r.client.Do(ctx, http.MethodPost, r.path, v)
		if err != nil {
			var zero T
			return zero, err
		}
		return decodeItem(op, body, v)
	})
}

func (r *Resource[T]) Update(ctx context.Context, id domain.ID, v T) (T, error) {
	if id.IsZero() {
		return v, apperr.New(apperr.KindValidationFailed, "PUT "+r.path, errors.New("update requires an id"))
	}
	op := "PUT " + r.itemPath(id)
	return Authenticated(r.client, op, func() (T, error) {
		body, err := r.client.Do(ctx, http.MethodPut, r.itemPath(id), v)
		if err != nil {
			return v, err
		}
		return decodeItem(op, body, v)
	})
}

func (r *Resource[T]) Delete(ctx context.Context, id domain.ID) error {
	if id.IsZero() {
		return apperr.New(apperr.KindValidationFailed, "DELETE "+r.path, errors.New("delete requires an id"))
	}
	op := "DELETE " + r.itemPath(id)
	_, err := Authenticated(r.client, op, func() ([]byte, error) {
		return r.client.Do(ctx, http.MethodDelete, r.itemPath(id), nil)
	})
	return err
}

func decodeItem[T any](op string, body []byte, fallback T) (T, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return fallback, nil
	}
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return fallback, apperr.New(apperr.KindRequestFailed, op, fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

// decodeList is the single normalization point for list responses. It
// accepts a bare array, {"data": [...]} or a DRF page {"results": [...]}.
func decodeList[T any](body []byte) ([]T, error) {
	raw, err := listPayload(body, 0)
	if err != nil {
		return nil, err
	}
	items := []T{}
	if raw == "" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return items, nil
}

func listPayload(body []byte, depth int) (string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", nil
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("list response is not valid JSON")
	}
	res := gjson.ParseBytes(body)
	switch {
	case res.IsArray():
		return res.Raw, nil
	case res.Type == gjson.Null:
		return "", nil
	case res.IsObject() && depth == 0:
		for _, key := range []string{"data", "results"} {
			v := res.Get(key)
			if v.IsArray() || v.IsObject() {
				return listPayload([]byte(v.Raw), depth+1)
			}
		}
	}
	return "", errors.New("unexpected list response shape")
}
