package delivery

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	coretelegram "github.com/m3rciful/channelgate/core/telegram"
	"github.com/m3rciful/channelgate/internal/content"
	"github.com/m3rciful/channelgate/internal/messenger/messengertest"
	"github.com/m3rciful/channelgate/internal/users"

	tele "gopkg.in/telebot.v4"
)

const pdfBody = "%PDF-1.7\n1 0 obj\n<<>>\nendobj\n"

type staticContent struct{ url string }

func (c staticContent) BonusURL() string { return c.url }

func (c staticContent) Texts() content.Copy {
	return content.Copy{
		FirstDelivery:  "first",
		RepeatDelivery: "repeat",
		LinkFallback:   "link: " + c.url,
		ErrorFallback:  "error: " + c.url,
	}
}

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newService(t *testing.T, fake *messengertest.Fake, url string) (*Service, *users.Store) {
	t.Helper()
	store := users.NewStore(t.TempDir() + "/users.json")
	store.GetOrCreate(42, "")
	svc := NewService(fake, store, staticContent{url: url}, nil, Options{
		FileName: "checklist.pdf", Caption: "caption", FetchTimeout: 2 * time.Second, MaxBytes: 1 << 20,
	})
	return svc, store
}

func isURLDoc(what interface{}) bool {
	doc, ok := what.(*tele.Document)
	return ok && doc.File.FileURL != ""
}

func isReaderDoc(what interface{}) bool {
	doc, ok := what.(*tele.Document)
	return ok && doc.File.FileReader != nil
}

func TestDeliverBytesTier(t *testing.T) {
	srv := serve(t, http.StatusOK, pdfBody)
	fake := &messengertest.Fake{}
	svc, store := newService(t, fake, srv.URL)

	if !svc.Deliver(context.Background(), 100, 42) {
		t.Fatal("expected delivered")
	}
	sent := fake.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	if sent[0].Text() != "first" || sent[0].To != "100" {
		t.Fatalf("intro = %+v", sent[0])
	}
	if !isReaderDoc(sent[1].What) {
		t.Fatalf("second send is not a byte upload: %#v", sent[1].What)
	}
	doc := sent[1].What.(*tele.Document)
	if doc.FileName != "checklist.pdf" || doc.Caption != "caption" {
		t.Fatalf("document = %+v", doc)
	}
	if rec, _ := store.Get(42); !rec.PDFSent {
		t.Fatal("pdf flag not set")
	}
}

func TestDeliverRepeatCopy(t *testing.T) {
	srv := serve(t, http.StatusOK, pdfBody)
	fake := &messengertest.Fake{}
	svc, _ := newService(t, fake, srv.URL)

	svc.Deliver(context.Background(), 100, 42)
	fake.Reset()
	if !svc.Deliver(context.Background(), 100, 42) {
		t.Fatal("expected delivered")
	}
	if texts := fake.Texts(); len(texts) != 1 || texts[0] != "repeat" {
		t.Fatalf("texts = %v", texts)
	}
}

func TestDeliverNonPDFStillSent(t *testing.T) {
	srv := serve(t, http.StatusOK, "<html>drive warning page</html>")
	fake := &messengertest.Fake{}
	svc, _ := newService(t, fake, srv.URL)

	if !svc.Deliver(context.Background(), 100, 42) {
		t.Fatal("signature mismatch must not block delivery")
	}
	if docs := fake.Documents(); len(docs) != 1 || docs[0].File.FileReader == nil {
		t.Fatalf("documents = %+v", docs)
	}
}

func TestDeliverFallsBackToURL(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{name: "not found", status: http.StatusNotFound, body: "missing"},
		{name: "empty body", status: http.StatusOK, body: ""},
		{name: "server error", status: http.StatusInternalServerError, body: pdfBody},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := serve(t, tc.status, tc.body)
			fake := &messengertest.Fake{}
			svc, _ := newService(t, fake, srv.URL)

			if !svc.Deliver(context.Background(), 100, 42) {
				t.Fatal("expected delivered via url relay")
			}
			docs := fake.Documents()
			if len(docs) != 1 || docs[0].File.FileURL != srv.URL {
				t.Fatalf("documents = %+v", docs)
			}
		})
	}
}

func TestDeliverUploadRejectedFallsBackToURL(t *testing.T) {
	srv := serve(t, http.StatusOK, pdfBody)
	fake := &messengertest.Fake{FailSend: func(_ tele.Recipient, what interface{}) error {
		if isReaderDoc(what) {
			return errors.New("telegram: file too big")
		}
		return nil
	}}
	svc, _ := newService(t, fake, srv.URL)

	if !svc.Deliver(context.Background(), 100, 42) {
		t.Fatal("expected delivered via url relay")
	}
	if docs := fake.Documents(); len(docs) != 1 || docs[0].File.FileURL == "" {
		t.Fatalf("documents = %+v", docs)
	}
}

func TestDeliverLinkOnly(t *testing.T) {
	srv := serve(t, http.StatusNotFound, "")
	fake := &messengertest.Fake{FailSend: func(_ tele.Recipient, what interface{}) error {
		if isURLDoc(what) {
			return errors.New("telegram: wrong file identifier")
		}
		return nil
	}}
	svc, store := newService(t, fake, srv.URL)

	if svc.Deliver(context.Background(), 100, 42) {
		t.Fatal("link-only fallback must report false")
	}
	texts := fake.Texts()
	if len(texts) != 2 || texts[0] != "first" || texts[1] != "link: "+srv.URL {
		t.Fatalf("texts = %v", texts)
	}
	if len(fake.Documents()) != 0 {
		t.Fatal("no document should be recorded")
	}
	if rec, _ := store.Get(42); !rec.PDFSent {
		t.Fatal("flag is set on the first attempt regardless of outcome")
	}
}

func TestDeliverIntroFailure(t *testing.T) {
	srv := serve(t, http.StatusOK, pdfBody)
	fake := &messengertest.Fake{FailSend: func(_ tele.Recipient, what interface{}) error {
		if what == "first" {
			return errors.New("blocked by user")
		}
		return nil
	}}
	svc, _ := newService(t, fake, srv.URL)

	if svc.Deliver(context.Background(), 100, 42) {
		t.Fatal("expected false when intro fails")
	}
	texts := fake.Texts()
	if len(texts) != 1 || !strings.HasPrefix(texts[0], "error: ") {
		t.Fatalf("texts = %v", texts)
	}
	if len(fake.Documents()) != 0 {
		t.Fatal("no document expected")
	}
}

func TestFetchErrors(t *testing.T) {
	fake := &messengertest.Fake{}
	svc, _ := newService(t, fake, "")

	srv := serve(t, http.StatusForbidden, "")
	_, err := svc.fetch(context.Background(), srv.URL)
	var ferr *FetchError
	if !errors.As(err, &ferr) || ferr.Status != http.StatusForbidden {
		t.Fatalf("err = %v", err)
	}

	big := serve(t, http.StatusOK, strings.Repeat("x", 2<<20))
	_, err = svc.fetch(context.Background(), big.URL)
	if !errors.Is(err, errTooLarge) {
		t.Fatalf("err = %v, want size error", err)
	}

	_, err = svc.fetch(context.Background(), "http://127.0.0.1:1/unreachable")
	if !errors.As(err, &ferr) || ferr.Code() != "fetch" {
		t.Fatalf("err = %v", err)
	}
}

func TestProbe(t *testing.T) {
	srv := serve(t, http.StatusOK, pdfBody)
	svc, _ := newService(t, &messengertest.Fake{}, srv.URL)

	res, err := svc.Probe(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.HTTPStatus != 200 || res.ByteSize != len(pdfBody) || !res.SignatureMatches {
		t.Fatalf("result = %+v", res)
	}
	if res.ContentType != "application/pdf" || res.DetectedType != "application/pdf" {
		t.Fatalf("types = %q %q", res.ContentType, res.DetectedType)
	}
	if len(res.FirstBytesHex) != 40 || !strings.HasPrefix(res.FirstBytesHex, "25504446") {
		t.Fatalf("first bytes = %q", res.FirstBytesHex)
	}
}

func TestProbeReportsNonSuccess(t *testing.T) {
	srv := serve(t, http.StatusNotFound, "nope")
	svc, _ := newService(t, &messengertest.Fake{}, srv.URL)

	res, err := svc.Probe(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.HTTPStatus != 404 || res.SignatureMatches || res.FirstBytesHex != "6e6f7065" {
		t.Fatalf("result = %+v", res)
	}
}

type countingTransport struct {
	base  http.RoundTripper
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return c.base.RoundTrip(req)
}

func TestDeliverRefusedHostFetchesOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	url := "http://" + addr + "/checklist.pdf"

	client := coretelegram.BuildFetchClient()
	counter := &countingTransport{base: client.Transport}
	client.Transport = counter

	fake := &messengertest.Fake{}
	store := users.NewStore(t.TempDir() + "/users.json")
	store.GetOrCreate(42, "")
	svc := NewService(fake, store, staticContent{url: url}, client, Options{
		FileName: "checklist.pdf", FetchTimeout: 5 * time.Second, MaxBytes: 1 << 20,
	})

	start := time.Now()
	if !svc.Deliver(context.Background(), 100, 42) {
		t.Fatal("expected delivery through the URL tier")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("URL tier reached after %s, want under 1s", elapsed)
	}
	if got := counter.calls.Load(); got != 1 {
		t.Fatalf("fetch attempts = %d, want 1", got)
	}
	docs := fake.Documents()
	if len(docs) != 1 || docs[0].File.FileURL != url {
		t.Fatalf("documents = %+v", docs)
	}
}
