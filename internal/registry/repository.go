package registry

import "context"

type Repository interface {
	Get(ctx context.Context, name string) (*Project, error)
	List(ctx context.Context) ([]*Project, error)
	Upsert(ctx context.Context, p *Project) error
	Delete(ctx context.Context, name string) error
}
