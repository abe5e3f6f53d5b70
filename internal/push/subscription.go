// Package push fans bridge activity out to web-push subscribers (operator
// browsers), so permission prompts and errors are noticed even when nobody is
// watching the chat channel.
package push

import "context"

// Subscription is one browser push subscription.
type Subscription struct {
	ID        string `yaml:"id"`
	Endpoint  string `yaml:"endpoint"`
	P256dhKey string `yaml:"p256dh_key"`
	AuthKey   string `yaml:"auth_key"`
}

type Repository interface {
	List(ctx context.Context) ([]*Subscription, error)
	Upsert(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}
