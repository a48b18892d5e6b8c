package main

import (
	"testing"

	"github.com/italolelis/aria2_downloader/internal/events"
	"github.com/italolelis/aria2_downloader/internal/storage"
	"github.com/stretchr/testify/assert"
)

func TestNotificationFor(t *testing.T) {
	record := storage.DownloadRecord{ID: "1", Name: "file.zip", DownloadStatus: storage.StatusDownloading}

	assert.Contains(t, notificationFor(events.Event{Type: events.DownloadAdded, Download: record}), "Download added: file.zip (1)")

	record.DownloadStatus = storage.StatusComplete
	assert.Contains(t, notificationFor(events.Event{Type: events.DownloadUpdated, Download: record}), "Download finished")

	record.DownloadStatus = storage.StatusError
	assert.Contains(t, notificationFor(events.Event{Type: events.DownloadUpdated, Download: record}), "Download failed")

	record.DownloadStatus = storage.StatusPaused
	assert.Empty(t, notificationFor(events.Event{Type: events.DownloadUpdated, Download: record}))
}
