// Package message implements the Message Parser: it dispatches on a
// message's leading type token and constructs one of the
// Ident/Download/Upload variants, recursively parsing any embedded
// changeset sub-headers and payloads.
package message

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/i5heu/ouroboros-sync/internal/changeset"
	"github.com/i5heu/ouroboros-sync/internal/wire"
	"github.com/i5heu/ouroboros-sync/pkg/protocol"
)

// ErrUnknownMessageType is returned when the leading token does not
// match "ident", "download", or "upload".
var ErrUnknownMessageType = errors.New("message: unknown message type")

// Kind tags which variant a Message holds.
type Kind int

const (
	KindIdent Kind = iota
	KindDownload
	KindUpload
)

// Ident is the parsed form of an "ident" message: the server-assigned
// file identity for this session.
type Ident struct {
	SessionIdent protocol.SessionIdent
	FileIdent    protocol.SaltedFileIdent
}

// Download is the parsed form of a "download" message, including its
// fully-framed and changeset-split body.
type Download struct {
	SessionIdent        protocol.SessionIdent
	Progress            protocol.SyncProgress
	LatestServerVersion protocol.SaltedVersion
	DownloadableBytes   uint64
	Changesets          []protocol.RemoteChangeset
}

// Upload is the parsed form of an "upload" message, whose body
// changesets are fully decoded into instructions eagerly (the upload
// path has no transformer to defer decoding to).
type Upload struct {
	SessionIdent        protocol.SessionIdent
	UploadProgress      protocol.UploadCursor
	LockedServerVersion uint64
	Changesets          []protocol.LocalChangeset
}

// Message is the tagged sum of the three variants the driver dispatches
// on.
type Message struct {
	Kind     Kind
	Ident    Ident
	Download Download
	Upload   Upload
}

// Parse reads one message from the head of c and returns it along with
// the cursor positioned just past it. It returns an error without a
// usable cursor on any parse failure: the caller must discard the
// stream on error rather than try to resume from where parsing stopped.
func Parse(c wire.Cursor, logger *slog.Logger) (Message, wire.Cursor, error) {
	msgType, rest, err := wire.ScanMessageType(c)
	if err != nil {
		return Message{}, c, fmt.Errorf("message: reading message type: %w", err)
	}

	switch msgType {
	case "ident":
		ident, rest, err := parseIdent(rest)
		if err != nil {
			return Message{}, c, err
		}
		return Message{Kind: KindIdent, Ident: ident}, rest, nil
	case "download":
		dl, rest, err := parseDownload(rest, logger)
		if err != nil {
			return Message{}, c, err
		}
		return Message{Kind: KindDownload, Download: dl}, rest, nil
	case "upload":
		up, rest, err := parseUpload(rest, logger)
		if err != nil {
			return Message{}, c, err
		}
		return Message{Kind: KindUpload, Upload: up}, rest, nil
	default:
		return Message{}, c, fmt.Errorf("%w: %q", ErrUnknownMessageType, msgType)
	}
}

func parseIdent(c wire.Cursor) (Ident, wire.Cursor, error) {
	sessionIdent, c, err := wire.ScanUint64Field(c, ' ')
	if err != nil {
		return Ident{}, c, fmt.Errorf("message: ident: session_ident: %w", err)
	}
	ident, c, err := wire.ScanUint64Field(c, ' ')
	if err != nil {
		return Ident{}, c, fmt.Errorf("message: ident: file_ident.ident: %w", err)
	}
	salt, c, err := wire.ScanUint64Field(c, '\n')
	if err != nil {
		return Ident{}, c, fmt.Errorf("message: ident: file_ident.salt: %w", err)
	}

	return Ident{
		SessionIdent: protocol.SessionIdent(sessionIdent),
		FileIdent:    protocol.SaltedFileIdent{Ident: ident, Salt: salt},
	}, c, nil
}

func parseDownload(c wire.Cursor, logger *slog.Logger) (Download, wire.Cursor, error) {
	var ret Download
	var isCompressed, uncompressedSize, compressedSize uint64

	fields := []struct {
		dst  *uint64
		name string
	}{
		{new(uint64), "session_ident"},
		{new(uint64), "progress.download.server_version"},
		{new(uint64), "progress.download.last_integrated_client_version"},
		{new(uint64), "latest_server_version.version"},
		{new(uint64), "latest_server_version.salt"},
		{new(uint64), "progress.upload.client_version"},
		{new(uint64), "progress.upload.last_integrated_server_version"},
		{new(uint64), "downloadable_bytes"},
		{&isCompressed, "is_body_compressed"},
		{&uncompressedSize, "uncompressed_body_size"},
		{&compressedSize, "compressed_body_size"},
	}

	cur := c
	for i, f := range fields {
		delim := byte(' ')
		if i == len(fields)-1 {
			delim = '\n'
		}
		v, rest, err := wire.ScanUint64Field(cur, delim)
		if err != nil {
			logger.Error("error parsing header line for download message", "field", f.name)
			return Download{}, c, fmt.Errorf("message: download: %s: %w", f.name, err)
		}
		*f.dst = v
		cur = rest
	}

	ret.SessionIdent = protocol.SessionIdent(*fields[0].dst)
	ret.Progress.Download = protocol.DownloadCursor{
		ServerVersion:               *fields[1].dst,
		LastIntegratedClientVersion: *fields[2].dst,
	}
	ret.LatestServerVersion = protocol.SaltedVersion{
		Version: *fields[3].dst,
		Salt:    *fields[4].dst,
	}
	ret.Progress.Upload = protocol.UploadCursor{
		ClientVersion:               *fields[5].dst,
		LastIntegratedServerVersion: *fields[6].dst,
	}
	ret.DownloadableBytes = *fields[7].dst

	framed, err := wire.FrameBody(cur, compressedSize, uncompressedSize, isCompressed != 0, logger)
	if err != nil {
		return Download{}, c, err
	}
	cur = framed.Rest

	logger.Debug("decoding download message",
		"download_server", ret.Progress.Download.ServerVersion,
		"download_client", ret.Progress.Download.LastIntegratedClientVersion,
		"upload_server", ret.Progress.Upload.LastIntegratedServerVersion,
		"upload_client", ret.Progress.Upload.ClientVersion,
		"latest_server_version", ret.LatestServerVersion.Version,
	)

	body := wire.NewCursor(framed.Body)
	for !body.Empty() {
		remoteVersion, rest, err := wire.ScanUint64Field(body, ' ')
		if err != nil {
			return Download{}, c, fmt.Errorf("message: download: changeset remote_version: %w", err)
		}
		lastIntegratedLocal, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Download{}, c, fmt.Errorf("message: download: changeset last_integrated_local_version: %w", err)
		}
		originTimestamp, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Download{}, c, fmt.Errorf("message: download: changeset origin_timestamp: %w", err)
		}
		originFileIdent, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Download{}, c, fmt.Errorf("message: download: changeset origin_file_ident: %w", err)
		}
		originalChangesetSize, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Download{}, c, fmt.Errorf("message: download: changeset original_changeset_size: %w", err)
		}
		changesetSize, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Download{}, c, fmt.Errorf("message: download: changeset changeset_size: %w", err)
		}

		if changesetSize > uint64(rest.Len()) {
			logger.Error("changeset length exceeds remaining body",
				"changeset_length", changesetSize, "remaining_body", rest.Len())
			return Download{}, c, fmt.Errorf(
				"message: download: changeset length is %d but remaining body is %d bytes",
				changesetSize, rest.Len())
		}

		payload := rest.Remaining()[:changesetSize]
		if instructions, err := changeset.Decode(payload); err != nil {
			logger.Debug("download changeset failed trace decode", "error", err)
		} else {
			logger.Debug("found download changeset",
				"server_version", remoteVersion, "client_version", lastIntegratedLocal,
				"origin_file_ident", originFileIdent, "instruction_count", len(instructions))
		}

		ret.Changesets = append(ret.Changesets, protocol.RemoteChangeset{
			RemoteVersion:              remoteVersion,
			LastIntegratedLocalVersion: lastIntegratedLocal,
			OriginTimestamp:            originTimestamp,
			OriginFileIdent:            originFileIdent,
			OriginalChangesetSize:      originalChangesetSize,
			Payload:                    payload,
		})

		body = rest.Advance(int(changesetSize))
	}

	return ret, cur, nil
}

func parseUpload(c wire.Cursor, logger *slog.Logger) (Upload, wire.Cursor, error) {
	var ret Upload

	sessionIdent, cur, err := wire.ScanUint64Field(c, ' ')
	if err != nil {
		return Upload{}, c, fmt.Errorf("message: upload: session_ident: %w", err)
	}
	isCompressed, cur, err := wire.ScanUint64Field(cur, ' ')
	if err != nil {
		return Upload{}, c, fmt.Errorf("message: upload: is_body_compressed: %w", err)
	}
	uncompressedSize, cur, err := wire.ScanUint64Field(cur, ' ')
	if err != nil {
		return Upload{}, c, fmt.Errorf("message: upload: uncompressed_body_size: %w", err)
	}
	compressedSize, cur, err := wire.ScanUint64Field(cur, ' ')
	if err != nil {
		return Upload{}, c, fmt.Errorf("message: upload: compressed_body_size: %w", err)
	}
	clientVersion, cur, err := wire.ScanUint64Field(cur, ' ')
	if err != nil {
		return Upload{}, c, fmt.Errorf("message: upload: upload_progress.client_version: %w", err)
	}
	lastIntegratedServer, cur, err := wire.ScanUint64Field(cur, ' ')
	if err != nil {
		return Upload{}, c, fmt.Errorf("message: upload: upload_progress.last_integrated_server_version: %w", err)
	}
	lockedServerVersion, cur, err := wire.ScanUint64Field(cur, '\n')
	if err != nil {
		return Upload{}, c, fmt.Errorf("message: upload: locked_server_version: %w", err)
	}

	ret.SessionIdent = protocol.SessionIdent(sessionIdent)
	ret.UploadProgress = protocol.UploadCursor{
		ClientVersion:               clientVersion,
		LastIntegratedServerVersion: lastIntegratedServer,
	}
	ret.LockedServerVersion = lockedServerVersion

	framed, err := wire.FrameBody(cur, compressedSize, uncompressedSize, isCompressed != 0, logger)
	if err != nil {
		return Upload{}, c, err
	}
	cur = framed.Rest

	body := wire.NewCursor(framed.Body)
	for !body.Empty() {
		version, rest, err := wire.ScanUint64Field(body, ' ')
		if err != nil {
			return Upload{}, c, fmt.Errorf("message: upload: changeset version: %w", err)
		}
		lastIntegratedRemote, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Upload{}, c, fmt.Errorf("message: upload: changeset last_integrated_remote_version: %w", err)
		}
		originTimestamp, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Upload{}, c, fmt.Errorf("message: upload: changeset origin_timestamp: %w", err)
		}
		originFileIdent, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Upload{}, c, fmt.Errorf("message: upload: changeset origin_file_ident: %w", err)
		}
		changesetSize, rest, err := wire.ScanUint64Field(rest, ' ')
		if err != nil {
			return Upload{}, c, fmt.Errorf("message: upload: changeset changeset_size: %w", err)
		}

		if changesetSize > uint64(rest.Len()) {
			return Upload{}, c, fmt.Errorf(
				"message: upload: changeset length is %d but remaining body is %d bytes",
				changesetSize, rest.Len())
		}

		logger.Debug("found upload changeset",
			"last_integrated_remote_version", lastIntegratedRemote, "version", version,
			"origin_timestamp", originTimestamp, "origin_file_ident", originFileIdent,
			"changeset_size", changesetSize)

		payload := rest.Remaining()[:changesetSize]
		instructions, err := changeset.Decode(payload)
		if err != nil {
			logger.Error("error decoding changeset", "version", version, "error", err)
			return Upload{}, c, fmt.Errorf("message: upload: decoding changeset: %w", err)
		}

		ret.Changesets = append(ret.Changesets, protocol.LocalChangeset{
			Version:                     version,
			LastIntegratedRemoteVersion: lastIntegratedRemote,
			OriginTimestamp:             originTimestamp,
			OriginFileIdent:             originFileIdent,
			Instructions:                instructions,
		})

		body = rest.Advance(int(changesetSize))
	}

	return ret, cur, nil
}
