package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUnknownKind(t *testing.T) {
	_, err := New("monster", "x", "https://example.com")
	assert.Error(t, err)
}

func TestNewKnownKinds(t *testing.T) {
	for _, kind := range []string{KindGreenhouse, KindLever, KindCareerPage, KindInfojobs} {
		c, err := New(kind, "src", "https://example.com/jobs")
		require.NoError(t, err, kind)
		assert.NotNil(t, c, kind)
	}
}

func TestGreenhouseCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"jobs": [
				{
					"id": 4567,
					"absolute_url": "https://boards.example.com/acme/jobs/4567",
					"title": "Técnico de laboratorio",
					"content": "&lt;p&gt;Contrato indefinido a jornada completa.&lt;/p&gt;",
					"location": {"name": "Madrid"},
					"metadata": [
						{"name": "Salary", "value": "24.000 € anuales"},
						{"name": "Contract Type", "value": "indefinido"}
					]
				},
				{
					"id": 4568,
					"absolute_url": "https://boards.example.com/acme/jobs/4568",
					"title": "Aux lab",
					"content": "",
					"location": {"name": "Barcelona"},
					"metadata": [{"name": "Team", "value": ["a", "b"]}]
				}
			]
		}`))
	}))
	defer srv.Close()

	g := NewGreenhouse("acme", srv.URL)
	postings, err := g.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 2)

	p := postings[0]
	assert.Equal(t, "4567", p.ExternalID)
	assert.Equal(t, "Técnico de laboratorio", p.Title)
	assert.Equal(t, "acme", p.Company)
	assert.Equal(t, "Madrid", p.Location)
	assert.Equal(t, "24.000 € anuales", p.SalaryRaw)
	assert.Equal(t, "indefinido", p.ContractType)
	assert.Equal(t, "Contrato indefinido a jornada completa.", p.Description)

	// Non-string metadata values are skipped, not fatal.
	assert.Empty(t, postings[1].SalaryRaw)
}

func TestGreenhouseCollectServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewGreenhouse("acme", srv.URL).Collect(context.Background())
	assert.ErrorContains(t, err, "status 502")
}

func TestLeverCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"id": "abc-123",
				"text": "Lab Technician",
				"hostedUrl": "https://jobs.example.com/acme/abc-123",
				"categories": {"location": "Valencia", "commitment": "Full-time"},
				"descriptionPlain": "Puesto   estable,\n jornada completa.",
				"salaryRange": {"min": 22000, "max": 26000, "currency": "EUR", "interval": "per-year-salary"}
			},
			{
				"id": "abc-124",
				"text": "Intern",
				"hostedUrl": "https://jobs.example.com/acme/abc-124",
				"categories": {"location": "Remote"},
				"descriptionPlain": "Beca."
			}
		]`))
	}))
	defer srv.Close()

	postings, err := NewLever("acme", srv.URL).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 2)

	p := postings[0]
	assert.Equal(t, "abc-123", p.ExternalID)
	assert.Equal(t, "Lab Technician", p.Title)
	assert.Equal(t, "acme", p.Company)
	assert.Equal(t, "Full-time", p.ContractType)
	assert.Equal(t, "22000-26000 EUR per-year-salary", p.SalaryRaw)
	assert.Equal(t, "Puesto estable, jornada completa.", p.Description)

	assert.Empty(t, postings[1].SalaryRaw)
}

func TestCareerPageCollectStatic(t *testing.T) {
	page := `<html><body>
		<p>` + filler(600) + `</p>
		<ul class="careers-list">
			<li class="job-listing" data-job-id="lab-01">
				<h3 class="job-title">Técnico de laboratorio</h3>
				<span class="location">Sevilla</span>
				<span class="salary">1.400 €/mes</span>
				<span class="contract-type">indefinido</span>
				<div class="description">Análisis de muestras.</div>
				<a href="/jobs/lab-01">Ver oferta</a>
			</li>
			<li class="job-listing" data-job-id="lab-02">
				<h3 class="job-title"></h3>
			</li>
		</ul>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	c := NewCareerPage("acme", srv.URL)
	c.render = func(context.Context, string) (string, error) {
		t.Fatal("browser fallback must not fire for a content-rich page")
		return "", nil
	}

	postings, err := c.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 1, "items without a title are dropped")

	p := postings[0]
	assert.Equal(t, "lab-01", p.ExternalID)
	assert.Equal(t, "Técnico de laboratorio", p.Title)
	assert.Equal(t, "acme", p.Company)
	assert.Equal(t, "Sevilla", p.Location)
	assert.Equal(t, "1.400 €/mes", p.SalaryRaw)
	assert.Equal(t, "indefinido", p.ContractType)
	assert.Equal(t, srv.URL+"/jobs/lab-01", p.URL)
}

func TestCareerPageBrowserFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div id="app"></div></body></html>`))
	}))
	defer srv.Close()

	rendered := `<html><body><p>` + filler(600) + `</p>
		<div class="job-offer"><h2>Analista químico</h2><a href="/jobs/2">go</a></div>
	</body></html>`

	c := NewCareerPage("acme", srv.URL)
	var fired bool
	c.render = func(_ context.Context, url string) (string, error) {
		fired = true
		assert.Equal(t, srv.URL, url)
		return rendered, nil
	}

	postings, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.True(t, fired, "thin static page triggers rendering")
	require.Len(t, postings, 1)
	assert.Equal(t, "Analista químico", postings[0].Title)
}

func TestCareerPageEmptyBoard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>` + filler(600) + `</p></body></html>`))
	}))
	defer srv.Close()

	c := NewCareerPage("acme", srv.URL)
	postings, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, postings, "no listings is an empty run, not an error")
}

func TestInfojobsCollect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/buscar", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<a href="/madrid/tecnico-laboratorio/of-i11111">Técnico</a>
			<a href="/madrid/tecnico-laboratorio/of-i11111">Técnico (dup)</a>
			<a href="/sobre-nosotros">About</a>
		</body></html>`))
	})
	mux.HandleFunc("/madrid/tecnico-laboratorio/of-i11111", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>
			<h1>Técnico de laboratorio</h1>
			<span class="company-name">Acme Labs</span>
			<ul>
				<li>Salario: 1.500 €/mes</li>
				<li>Tipo de contrato: indefinido</li>
				<li>Localidad: Madrid</li>
			</ul>
			<div class="offer-description">Análisis de muestras clínicas.</div>
		</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	postings, err := NewInfojobs("infojobs-madrid", srv.URL+"/buscar").Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, postings, 1, "duplicate listing links collapse")

	p := postings[0]
	assert.Equal(t, "of-i11111", p.ExternalID)
	assert.Equal(t, "Técnico de laboratorio", p.Title)
	assert.Equal(t, "Acme Labs", p.Company)
	assert.Equal(t, "Madrid", p.Location)
	assert.Equal(t, "1.500 €/mes", p.SalaryRaw)
	assert.Equal(t, "indefinido", p.ContractType)
	assert.Equal(t, "Análisis de muestras clínicas.", p.Description)
}

func TestOfferIDFromURL(t *testing.T) {
	assert.Equal(t, "of-i8a1b2", offerIDFromURL("https://www.infojobs.net/madrid/puesto/of-i8a1b2"))
	assert.Empty(t, offerIDFromURL("https://www.infojobs.net/sobre-nosotros"))
}

func filler(n int) string {
	s := make([]byte, n)
	for i := range s {
		s[i] = 'x'
	}
	return string(s)
}
