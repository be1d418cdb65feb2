// Package server exposes HTTP handlers: health checks and the built-in test
// page for the WebSocket bridge.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// HealthHandler reports that the relay is running together with the number
// of connected clients. It answers 503 when the hub no longer responds.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")

		clients, err := hub.Clients(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "TCP relay hub unavailable: %v\n", err)
			return
		}
		_, _ = fmt.Fprintf(w, "TCP relay is running! clients=%d\n", len(clients))
	}
}

// TestPageHandler serves an HTML page that connects to the WebSocket bridge
// and shows the raw chunks relayed from other clients.
func TestPageHandler(log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")

		scheme := "ws"
		if r.TLS != nil {
			scheme = "wss"
		}
		wsURL := scheme + "://" + r.Host + "/ws"

		page := strings.Replace(testPage, "{{WS_URL}}", wsURL, 1)
		if _, err := fmt.Fprint(w, page); err != nil {
			log.Warnf("Error writing HTML response: %v", err)
		}
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>TCP Relay WebSocket Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            white-space: pre-wrap;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        .connected { color: #155724; }
        .disconnected { color: #721c24; }
    </style>
</head>
<body>
    <h1>TCP Relay WebSocket Test</h1>
    <div id="status" class="disconnected">Disconnected</div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text) {
            const line = document.createElement('div');
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = connected ? 'connected' : 'disconnected';
            messageInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
                return;
            }
            ws = new WebSocket('{{WS_URL}}');
            ws.onopen = () => { addLine('-- connected'); updateStatus(true); };
            ws.onmessage = (event) => addLine(event.data);
            ws.onclose = () => { addLine('-- connection closed'); updateStatus(false); ws = null; };
        }

        function sendMessage() {
            const message = messageInput.value;
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(message + '\n');
                addLine('> ' + message);
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', (e) => { if (e.key === 'Enter') sendMessage(); });
    </script>
</body>
</html>`
