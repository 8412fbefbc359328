package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/doccapture/internal/crop"
	"github.com/ayusman/doccapture/internal/plugin"
	"github.com/ayusman/doccapture/internal/store"
	"github.com/ayusman/doccapture/internal/upload"
)

// Sink names recorded in the delivery log.
const (
	SinkUpload       = "upload"
	sinkPluginPrefix = "plugin:"
)

// deliver stores f, runs the capture callbacks and hands the document to the
// upload and plugin sinks in the background.
func (a *App) deliver(f *crop.File) (*store.Document, error) {
	doc := store.NewDocument(f)

	if st := a.config.Store; st != nil {
		if err := st.Documents().Create(doc); err != nil {
			return nil, fmt.Errorf("store document: %w", err)
		}
	} else {
		doc.CreatedAt = time.Now()
	}

	a.log.Info("document captured",
		zap.String("id", doc.ID),
		zap.String("mode", string(doc.Mode)),
		zap.Int("width", doc.Width),
		zap.Int("height", doc.Height),
		zap.Int("bytes", doc.Size),
	)

	a.mu.RLock()
	callbacks := append([]func(crop.File){}, a.callbacks...)
	a.mu.RUnlock()
	for _, fn := range callbacks {
		fn(*f)
	}

	subscribers := a.pluginMgr.Subscribers(plugin.EventDocumentCaptured)
	if a.uploader == nil && len(subscribers) == 0 {
		return doc, nil
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(doc, subscribers)
	}()
	return doc, nil
}

// dispatch sends doc to every sink, one after another, and records each
// attempt.
func (a *App) dispatch(doc *store.Document, subscribers []*plugin.Plugin) {
	if a.uploader != nil {
		_, err := a.uploader.Upload(a.ctx, upload.Document{
			ID:          doc.ID,
			Name:        doc.Name,
			ContentType: doc.ContentType,
			Mode:        string(doc.Mode),
			Width:       doc.Width,
			Height:      doc.Height,
			Data:        doc.Data,
		})
		a.record(doc.ID, SinkUpload, err)
	}

	for _, p := range subscribers {
		req := &plugin.Request{
			Event: plugin.EventDocumentCaptured,
			Document: plugin.DocumentInfo{
				ID:          doc.ID,
				Name:        doc.Name,
				ContentType: doc.ContentType,
				Mode:        string(doc.Mode),
				Width:       doc.Width,
				Height:      doc.Height,
			},
			Data: doc.Data,
		}

		resp, err := a.pluginExe.ExecuteContext(a.ctx, p, req)
		if err == nil && !resp.Success {
			err = fmt.Errorf("plugin reported failure: %s", resp.Error)
		}
		a.record(doc.ID, sinkPluginPrefix+p.Manifest.Name, err)
	}
}

func (a *App) record(documentID, sink string, err error) {
	if err != nil {
		a.log.Warn("delivery failed", zap.String("document", documentID), zap.String("sink", sink), zap.Error(err))
	} else {
		a.log.Debug("delivered", zap.String("document", documentID), zap.String("sink", sink))
	}

	st := a.config.Store
	if st == nil {
		return
	}
	d := &store.Delivery{DocumentID: documentID, Sink: sink, Success: err == nil}
	if err != nil {
		d.Error = err.Error()
	}
	if err := st.Deliveries().Record(d); err != nil {
		a.log.Warn("failed to record delivery", zap.String("document", documentID), zap.Error(err))
	}
}
