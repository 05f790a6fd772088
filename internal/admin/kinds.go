package admin

import (
	"github.com/debemdeboas/stand-admin/internal/editor"
	"github.com/debemdeboas/stand-admin/internal/model"
)

// RedirectField is a field holding a URL that must point at a record of Target.
type RedirectField struct {
	Path   string
	Target model.Kind
}

// KindDef describes how one content type is edited and listed.
type KindDef struct {
	Kind model.Kind

	SearchFields []string
	Redirects    []RedirectField
	AutoSlugs    []editor.AutoSlug

	// PublicPrefix is the public page path of records of this kind; records
	// with a slug live at PublicPrefix + "/" + slug.
	PublicPrefix string
	// Singleton kinds such as the home page are one page, always PublicPrefix.
	Singleton bool
}

// PublicPath returns the page to revalidate after rec is saved.
func (k KindDef) PublicPath(rec *model.Record) string {
	if k.Singleton || rec == nil || rec.Slug() == "" {
		return k.PublicPrefix
	}
	if k.PublicPrefix == "/" {
		return "/" + rec.Slug()
	}
	return k.PublicPrefix + "/" + rec.Slug()
}

type Registry map[model.Kind]KindDef

func (r Registry) Add(def KindDef) {
	r[def.Kind] = def
}

var nameSlug = []editor.AutoSlug{{Source: "name", Target: "slug"}}

// DefaultKinds lists the content types of the marketing site.
func DefaultKinds() Registry {
	r := Registry{}
	r.Add(KindDef{Kind: "home-page", PublicPrefix: "/", Singleton: true})
	r.Add(KindDef{Kind: "seo", PublicPrefix: "/", Singleton: true})
	r.Add(KindDef{
		Kind:         "blog-post",
		SearchFields: []string{"title", "slug", "excerpt"},
		Redirects:    []RedirectField{{Path: "redirectUrl", Target: "blog-post"}},
		AutoSlugs:    []editor.AutoSlug{{Source: "title", Target: "slug"}},
		PublicPrefix: "/blog",
	})
	r.Add(KindDef{
		Kind:         "trade-show",
		SearchFields: []string{"name", "city", "country", "slug"},
		Redirects:    []RedirectField{{Path: "redirectUrl", Target: "trade-show"}},
		AutoSlugs:    nameSlug,
		PublicPrefix: "/trade-shows",
	})
	r.Add(KindDef{Kind: "country", SearchFields: []string{"name", "slug"}, AutoSlugs: nameSlug, PublicPrefix: "/countries"})
	r.Add(KindDef{Kind: "city", SearchFields: []string{"name", "country", "slug"}, AutoSlugs: nameSlug, PublicPrefix: "/cities"})
	r.Add(KindDef{Kind: "testimonial", SearchFields: []string{"author", "company", "quote"}, PublicPrefix: "/"})
	r.Add(KindDef{
		Kind:         "portfolio-item",
		SearchFields: []string{"title", "client", "slug"},
		AutoSlugs:    []editor.AutoSlug{{Source: "title", Target: "slug"}},
		PublicPrefix: "/portfolio",
	})
	return r
}
