package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>FraudGuard</title>
    <meta name="description" content="Real-time transaction fraud monitoring">
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>&#128737;</text></svg>">
    <link rel="preconnect" href="https://fonts.googleapis.com">
    <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
    <link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600&family=JetBrains+Mono:wght@400;500&display=swap" rel="stylesheet">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #09090b;
            --bg-subtle: #18181b;
            --border: #27272a;
            --text: #fafafa;
            --text-secondary: #a1a1aa;
            --text-tertiary: #52525b;
            --green: #22c55e;
            --amber: #f59e0b;
            --red: #ef4444;
            --blue: #3b82f6;
            --red-dim: rgba(239, 68, 68, 0.1);
            --amber-dim: rgba(245, 158, 11, 0.1);
        }

        body {
            font-family: 'Inter', -apple-system, sans-serif;
            background: var(--bg);
            color: var(--text);
            min-height: 100vh;
            font-size: 14px;
            line-height: 1.5;
            -webkit-font-smoothing: antialiased;
        }

        .mono { font-family: 'JetBrains Mono', monospace; }

        .container {
            max-width: 1200px;
            margin: 0 auto;
            padding: 0 24px;
        }

        header {
            border-bottom: 1px solid var(--border);
            padding: 16px 0;
            position: sticky;
            top: 0;
            background: var(--bg);
            z-index: 100;
        }

        .header-inner {
            display: flex;
            justify-content: space-between;
            align-items: center;
        }

        .logo {
            font-weight: 600;
            font-size: 15px;
        }

        .conn-status {
            display: flex;
            align-items: center;
            gap: 8px;
            font-size: 12px;
            color: var(--text-secondary);
        }

        .conn-dot {
            width: 8px;
            height: 8px;
            border-radius: 50%;
            background: var(--text-tertiary);
        }

        .conn-dot.live { background: var(--green); }
        .conn-dot.down { background: var(--red); }

        .hero {
            display: grid;
            grid-template-columns: repeat(4, 1fr);
            gap: 16px;
            padding: 32px 0;
            border-bottom: 1px solid var(--border);
        }

        .metric-label {
            font-size: 12px;
            color: var(--text-secondary);
            text-transform: uppercase;
            letter-spacing: 0.05em;
        }

        .metric-value {
            font-size: 28px;
            font-weight: 600;
            margin-top: 4px;
        }

        .metric-value.red { color: var(--red); }

        .grid {
            display: grid;
            grid-template-columns: 3fr 2fr;
            gap: 24px;
            padding: 24px 0;
        }

        .panel-title {
            font-size: 13px;
            font-weight: 600;
            color: var(--text-secondary);
            text-transform: uppercase;
            letter-spacing: 0.05em;
            margin-bottom: 12px;
        }

        .alert {
            border: 1px solid var(--border);
            border-left: 3px solid var(--amber);
            border-radius: 6px;
            padding: 12px;
            margin-bottom: 8px;
            background: var(--bg-subtle);
        }

        .alert.fraud {
            border-left-color: var(--red);
            background: var(--red-dim);
        }

        .alert.new { animation: flash 1s ease-out; }

        @keyframes flash {
            from { background: var(--amber-dim); }
        }

        .alert-head {
            display: flex;
            justify-content: space-between;
            align-items: center;
        }

        .alert-badge {
            font-size: 11px;
            font-weight: 600;
            padding: 2px 8px;
            border-radius: 4px;
            background: var(--amber-dim);
            color: var(--amber);
        }

        .alert.fraud .alert-badge {
            background: var(--red-dim);
            color: var(--red);
        }

        .alert-score { font-size: 13px; }

        .alert-body {
            margin-top: 6px;
            display: flex;
            justify-content: space-between;
            color: var(--text);
        }

        .alert-reasons {
            margin-top: 4px;
            font-size: 12px;
            color: var(--text-secondary);
        }

        .alert-time {
            font-size: 11px;
            color: var(--text-tertiary);
        }

        table {
            width: 100%;
            border-collapse: collapse;
            font-size: 13px;
        }

        th {
            text-align: left;
            font-size: 11px;
            color: var(--text-tertiary);
            text-transform: uppercase;
            letter-spacing: 0.05em;
            padding: 6px 8px;
            border-bottom: 1px solid var(--border);
        }

        td {
            padding: 8px;
            border-bottom: 1px solid var(--border);
            color: var(--text-secondary);
        }

        td.amount { text-align: right; color: var(--text); }

        .status-badge {
            font-size: 11px;
            padding: 2px 8px;
            border-radius: 4px;
            background: var(--bg-subtle);
        }

        .status-approved { color: var(--green); }
        .status-flagged { color: var(--amber); }
        .status-under_review { color: var(--blue); }
        .status-declined { color: var(--red); }

        .empty {
            color: var(--text-tertiary);
            padding: 24px;
            text-align: center;
        }
    </style>
</head>
<body>
    <header>
        <div class="container header-inner">
            <span class="logo">&#128737; FraudGuard</span>
            <span class="conn-status"><span id="conn-dot" class="conn-dot"></span><span id="conn-text">connecting</span></span>
        </div>
    </header>

    <div class="container">
        <div class="hero">
            <div><div class="metric-label">Transactions</div><div class="metric-value mono" id="total-txns">&mdash;</div></div>
            <div><div class="metric-label">Fraud Detected</div><div class="metric-value mono red" id="fraud-count">&mdash;</div></div>
            <div><div class="metric-label">Stream Processed</div><div class="metric-value mono" id="stream-processed">&mdash;</div></div>
            <div><div class="metric-label">Subscribers</div><div class="metric-value mono" id="ws-clients">&mdash;</div></div>
        </div>

        <div class="grid">
            <div>
                <div class="panel-title">Live Alerts</div>
                <div id="alert-stream"><div class="empty">Waiting for alerts&hellip;</div></div>
            </div>
            <div>
                <div class="panel-title">Recent Transactions</div>
                <table>
                    <thead><tr><th>ID</th><th>Merchant</th><th>Status</th><th>Risk</th><th style="text-align:right">Amount</th></tr></thead>
                    <tbody id="tx-rows"><tr><td colspan="5" class="empty">No transactions yet</td></tr></tbody>
                </table>
            </div>
        </div>
    </div>

    <script>
        const maxAlerts = 25;
        let alertCount = 0;

        function escapeHtml(s) {
            const div = document.createElement('div');
            div.textContent = s == null ? '' : String(s);
            return div.innerHTML;
        }

        function formatUSD(n) {
            return Number(n || 0).toLocaleString('en-US', { minimumFractionDigits: 2, maximumFractionDigits: 2 });
        }

        function timeOf(ts) {
            const d = new Date(ts);
            return isNaN(d) ? '' : d.toLocaleTimeString();
        }

        function renderAlert(a) {
            const fraud = a.alert_type === 'FRAUD_DETECTED';
            const reasons = (a.reasons || []).map(escapeHtml).join(' &middot; ');
            return '<div class="alert new' + (fraud ? ' fraud' : '') + '">' +
                '<div class="alert-head">' +
                    '<span class="alert-badge">' + escapeHtml(a.alert_type) + '</span>' +
                    '<span class="alert-score mono">risk ' + Number(a.risk_score || 0).toFixed(3) + '</span>' +
                '</div>' +
                '<div class="alert-body">' +
                    '<span>' + escapeHtml(a.merchant) + ' &middot; ' + escapeHtml(a.customer_id) + '</span>' +
                    '<span class="mono">$' + formatUSD(a.amount) + '</span>' +
                '</div>' +
                (reasons ? '<div class="alert-reasons">' + reasons + '</div>' : '') +
                '<div class="alert-time mono">#' + escapeHtml(a.transaction_id) + ' &middot; ' + timeOf(a.timestamp) + '</div>' +
            '</div>';
        }

        function pushAlert(a) {
            const stream = document.getElementById('alert-stream');
            if (alertCount === 0) stream.innerHTML = '';
            stream.insertAdjacentHTML('afterbegin', renderAlert(a));
            alertCount++;
            while (stream.children.length > maxAlerts) {
                stream.removeChild(stream.lastChild);
            }
        }

        function setConn(state, label) {
            document.getElementById('conn-dot').className = 'conn-dot ' + state;
            document.getElementById('conn-text').textContent = label;
        }

        // WebSocket with reconnect
        let retryDelay = 1000;
        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const ws = new WebSocket(proto + location.host + '/ws');

            ws.onopen = () => {
                retryDelay = 1000;
                setConn('live', 'live');
            };

            ws.onmessage = (event) => {
                try {
                    const msg = JSON.parse(event.data);
                    if (msg.type === 'fraud_alert' && msg.data) pushAlert(msg.data);
                } catch (e) { /* ignore malformed frames */ }
            };

            ws.onclose = () => {
                setConn('down', 'reconnecting');
                setTimeout(connect, retryDelay);
                retryDelay = Math.min(retryDelay * 2, 15000);
            };
        }
        connect();

        async function safeFetch(url) {
            try {
                const r = await fetch(url);
                if (!r.ok) return null;
                return await r.json();
            } catch (e) {
                return null;
            }
        }

        function renderTxRow(tx) {
            return '<tr>' +
                '<td class="mono">' + escapeHtml(tx.id) + '</td>' +
                '<td>' + escapeHtml(tx.merchant_name) + '</td>' +
                '<td><span class="status-badge status-' + escapeHtml(tx.status) + '">' + escapeHtml(tx.status) + '</span></td>' +
                '<td class="mono">' + Number(tx.risk_score || 0).toFixed(3) + '</td>' +
                '<td class="amount mono">$' + formatUSD(tx.amount) + '</td>' +
            '</tr>';
        }

        async function loadData() {
            const [statsRes, txRes, streamRes] = await Promise.all([
                safeFetch('/api/v1/stats'),
                safeFetch('/api/v1/transactions?limit=15'),
                safeFetch('/api/v1/streaming/status')
            ]);

            if (statsRes?.transactions) {
                document.getElementById('total-txns').textContent = statsRes.transactions.total;
                document.getElementById('fraud-count').textContent = statsRes.transactions.fraud_detected;
            }
            if (streamRes) {
                document.getElementById('stream-processed').textContent = streamRes.consumer?.processed_count ?? 0;
                document.getElementById('ws-clients').textContent = streamRes.websocket_connections ?? 0;
            }

            const rows = document.getElementById('tx-rows');
            if (txRes?.transactions && txRes.transactions.length > 0) {
                rows.innerHTML = txRes.transactions.map(renderTxRow).join('');
            }
        }

        loadData();
        setInterval(loadData, 5000);
    </script>
</body>
</html>`

// dashboardHandler serves the live fraud monitoring dashboard
func dashboardHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, dashboardHTML)
}
