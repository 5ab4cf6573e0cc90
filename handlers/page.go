package handlers

import (
	"bytes"
	"html/template"
	"net/http"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8" />
    <title>Software Update</title>
    <style>
      body {
        margin: 0;
        padding: 0;
        font-family: Arial, sans-serif;
        background: #f0f2f5;
      }
      .container {
        max-width: 600px;
        margin: 5% auto;
        background: #ffffff;
        padding: 2rem;
        box-shadow: 0 2px 10px rgba(0, 0, 0, 0.1);
        border-radius: 8px;
      }
      .heading {
        text-align: center;
        margin-bottom: 1.5rem;
      }
      .btn-download {
        display: inline-block;
        padding: 1rem 2rem;
        background: #007bff;
        color: #ffffff;
        text-decoration: none;
        border-radius: 4px;
        font-weight: bold;
        transition: background 0.2s ease;
      }
      .btn-download:hover {
        background: #0056b3;
      }
      .button-row {
        text-align: center;
        margin-top: 2rem;
      }
    </style>
  </head>
  <body>
    <div class="container">
      <h1 class="heading">Software Update</h1>
      <p>
        We have a new update available that includes performance improvements
        and bug fixes to enhance your experience. Please click the button below
        to download the latest version.
      </p>
      <div class="button-row">
        <a class="btn-download" href="{{.DownloadPath}}">Download Latest Update</a>
      </div>
    </div>
  </body>
</html>
`))

// Page renders the landing page with its call-to-action pointing at downloadPath.
func Page(downloadPath string) (string, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct{ DownloadPath string }{downloadPath})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PageHandler serves the landing page. The document is rendered once, so
// every response from the returned handler carries the same bytes.
func PageHandler(downloadPath string) (http.HandlerFunc, error) {
	page, err := Page(downloadPath)
	if err != nil {
		return nil, err
	}
	body := []byte(page)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(body)
	}, nil
}
