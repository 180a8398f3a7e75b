// Package main provides a CLI client that submits documents to the OCR service.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xiaot623/ocrflow/internal/progress"
)

// Watcher prints progress messages for one client id.
type Watcher struct {
	conn *websocket.Conn
	done chan struct{}
}

// NewWatcher connects to the progress stream and waits for hello_ack.
func NewWatcher(baseURL, clientID string) (*Watcher, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse addr: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/v1/ws"
	u.RawQuery = url.Values{"client_id": {clientID}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	var ack progress.Message
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read hello_ack: %w", err)
	}
	if ack.Type != progress.TypeHelloAck {
		conn.Close()
		return nil, fmt.Errorf("expected hello_ack, got: %s", ack.Type)
	}

	return &Watcher{conn: conn, done: make(chan struct{})}, nil
}

// Run prints messages until the connection closes.
func (w *Watcher) Run() {
	defer close(w.done)
	for {
		var msg progress.Message
		if err := w.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !strings.Contains(err.Error(), "use of closed") {
				log.Printf("Read error: %v", err)
			}
			return
		}
		printProgress(&msg)
	}
}

// Close closes the connection and waits for Run to return.
func (w *Watcher) Close() {
	_ = w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = w.conn.Close()
	<-w.done
}

func printProgress(msg *progress.Message) {
	ts := time.UnixMilli(msg.Ts).Format("15:04:05")
	switch msg.Type {
	case progress.TypeRunStarted:
		fmt.Printf("[%s] run %s started (session %s)\n", ts, msg.RunID, msg.SessionID)
	case progress.TypeStepStarted:
		fmt.Printf("[%s] %s %s...\n", ts, msg.Step, msg.Name)
	case progress.TypeStepDone:
		fmt.Printf("[%s] %s done\n", ts, msg.Step)
	case progress.TypeStepFailed:
		fmt.Printf("[%s] %s failed: %s (%s)\n", ts, msg.Step, msg.Message, msg.Kind)
	case progress.TypePoll:
		if msg.Message != "" {
			fmt.Printf("[%s] poll #%d failed: %s\n", ts, msg.Attempt, msg.Message)
		} else {
			fmt.Printf("[%s] poll #%d\n", ts, msg.Attempt)
		}
	case progress.TypeDone:
		fmt.Printf("[%s] run %s done\n", ts, msg.RunID)
	case progress.TypeError:
		fmt.Printf("[%s] run %s failed: %s\n", ts, msg.RunID, msg.Message)
	default:
		fmt.Printf("[%s] %s\n", ts, msg.Type)
	}
}

// submit posts the document and returns the status code and response body.
func submit(client *http.Client, baseURL, path, chatbotID, clientID string) (int, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, fmt.Errorf("read file: %w", err)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chatbotId", chatbotID)
	if clientID != "" {
		_ = w.WriteField("clientId", clientID)
	}

	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mediaType == "" {
		mediaType = http.DetectContentType(data)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", mediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return 0, nil, fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return 0, nil, fmt.Errorf("write part: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimSuffix(baseURL, "/")+"/api/ocr", &body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func listChatbots(client *http.Client, baseURL string) (int, []byte, error) {
	resp, err := client.Get(strings.TrimSuffix(baseURL, "/") + "/api/chatbots")
	if err != nil {
		return 0, nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}

func printJSON(data []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(pretty.String())
}

func main() {
	addr := flag.String("addr", "http://localhost:3001", "OCR service address")
	file := flag.String("file", "", "Document to submit (image or PDF)")
	chatbotID := flag.String("chatbot", "", "Chatbot ID that performs the OCR")
	watch := flag.Bool("watch", true, "Stream step progress while the request runs")
	chatbots := flag.Bool("chatbots", false, "List OCR-capable chatbots and exit")
	timeout := flag.Duration("timeout", 3*time.Minute, "Request timeout")
	flag.Parse()

	log.SetFlags(log.Ltime)
	client := &http.Client{Timeout: *timeout}

	if *chatbots {
		status, body, err := listChatbots(client, *addr)
		if err != nil {
			log.Fatalf("List chatbots failed: %v", err)
		}
		printJSON(body)
		if status != http.StatusOK {
			os.Exit(1)
		}
		return
	}

	if *file == "" || *chatbotID == "" {
		flag.Usage()
		os.Exit(2)
	}

	clientID := ""
	if *watch {
		clientID = "cli_" + uuid.New().String()[:8]
		watcher, err := NewWatcher(*addr, clientID)
		if err != nil {
			log.Printf("Progress stream unavailable: %v", err)
			clientID = ""
		} else {
			go watcher.Run()
			defer watcher.Close()
		}
	}

	fmt.Printf("Submitting %s to chatbot %s...\n", *file, *chatbotID)
	status, body, err := submit(client, *addr, *file, *chatbotID, clientID)
	if err != nil {
		log.Fatalf("Submit failed: %v", err)
	}

	fmt.Printf("\n[%d] Response:\n", status)
	printJSON(body)
	if status != http.StatusOK {
		os.Exit(1)
	}
}
