package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/chatbridge/internal/push"
	"github.com/kazz187/chatbridge/pkg/cerr"
	"github.com/kazz187/chatbridge/pkg/storage"
)

const subscriptionsPrefix = "push_subscriptions"

type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", subscriptionsPrefix, id)
}

func (r *YAMLRepository) List(ctx context.Context) ([]*push.Subscription, error) {
	paths, err := r.storage.List(ctx, subscriptionsPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("push subscriptions", err)
	}
	subs := make([]*push.Subscription, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var sub push.Subscription
		if err := yaml.Unmarshal(data, &sub); err != nil {
			continue
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

func (r *YAMLRepository) Upsert(ctx context.Context, sub *push.Subscription) error {
	data, err := yaml.Marshal(sub)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal subscription: %w", err))
	}
	if err := r.storage.Write(ctx, path(sub.ID), data); err != nil {
		return cerr.WrapStorageWriteError("push subscription", err)
	}
	return nil
}

func (r *YAMLRepository) Delete(ctx context.Context, id string) error {
	if err := r.storage.Delete(ctx, path(id)); err != nil {
		return cerr.WrapStorageWriteError("push subscription", err)
	}
	return nil
}
