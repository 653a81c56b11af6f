/*
Package xrkconv converts telemetry uploads by running an external, pre-built
converter in an isolated workspace per request.

Every conversion owns a freshly allocated directory under the workspace root.
Support assets are staged into it, the converter runs there with a
per-session environment, and whatever it writes into the declared output
directory is delivered: a single file as-is, several files as one zip archive.
The workspace is removed once the delivery is closed.

# Usage

	svc, err := xrkconv.New(xrkconv.Config{
		WorkspaceRoot: "/var/lib/xrkconv/tmp",
		OutputDir:     "data",
		Executable:    process.Template{Command: "matlab", Args: []string{"-batch", "main"}},
		AssetRoot:     "/opt/xrk",
		Assets:        []string{"main.m", "AutoExportXrkData.m"},
		Timeout:       10 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	d, err := svc.Convert(ctx, xrkconv.Upload{Name: "lap.xrk", Body: f})
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	r, _ := d.Open()
	io.Copy(w, r)

Failures are returned as *domain.ConversionError carrying the terminal state
and, when the converter ran, its captured output.
*/
package xrkconv
