package api

import (
	"net/http"

	"github.com/fulldump/box"
	"github.com/fulldump/box/boxopenapi"

	"github.com/itemdb/itemdb/store"
)

func Build(s *store.Store, version string) *box.B {

	b := box.NewBox()

	b.WithInterceptors(
		box.SetResponseHeader("Content-Type", "application/json"),
		box.SetResponseHeader("Access-Control-Allow-Origin", "*"),
		box.SetResponseHeader("Access-Control-Allow-Methods", "*"),
		box.SetResponseHeader("Access-Control-Allow-Headers", "*"),
	)

	b.Resource("/add").
		WithActions(box.Post(addItem(s)))

	b.Resource("/snapshot").
		WithActions(box.Post(getSnapshot(s)))

	b.Resource("/remove").
		WithActions(box.Post(removeItem(s)))

	b.Resource("/clear").
		WithActions(box.Post(clearItems(s)))

	b.Resource("/health").
		WithActions(box.Get(health(s)))

	b.Resource("/release").
		WithActions(box.Get(func() string {
			return version
		}))

	spec := boxopenapi.Spec(b)
	spec.Info.Title = "ItemDB"
	spec.Info.Description = "A durable in-memory item store with a relational mirror."
	b.Handle("GET", "/openapi.json", func(r *http.Request) any {

		spec.Servers = []boxopenapi.Server{
			{
				Url: "http://" + r.Host,
			},
		}

		return spec
	})

	return b
}
