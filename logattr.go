package storesession

import "log/slog"

func component() slog.Attr {
	return slog.String("component", "storesession")
}

func backend(name string) slog.Attr {
	return slog.String("backend", name)
}

func sessionName(name string) slog.Attr {
	return slog.String("session_name", name)
}

// errAttr returns an empty Attr for a nil error so it drops out of the record.
func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}
