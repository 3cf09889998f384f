package web

const indexPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>prism preview</title>
<style>
body { background: #111; color: #ccc; font-family: monospace; margin: 20px; }
img { image-rendering: pixelated; border: 1px solid #333; }
button { margin-top: 10px; }
</style>
</head>
<body>
<div id="status">connecting...</div>
<img id="frame" alt="">
<div><button id="reset">reset</button></div>
<script>
(function() {
	var status = document.getElementById("status");
	var img = document.getElementById("frame");
	var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
	ws.binaryType = "blob";

	ws.onmessage = function(ev) {
		if (typeof ev.data === "string") {
			var info = JSON.parse(ev.data);
			var text = "samples " + info.samples;
			if (info.targetSamples > 0) {
				text += "/" + info.targetSamples;
			}
			text += " | " + info.renderTimeMs.toFixed(1) + " ms/sample";
			if (info.radius > 0) {
				text += " | radius " + info.radius.toFixed(4) + " | photons " + info.storedPhotons;
			}
			status.textContent = text;
			return;
		}

		var url = URL.createObjectURL(ev.data);
		img.onload = function() { URL.revokeObjectURL(url); };
		img.src = url;
	};
	ws.onclose = function() { status.textContent += " (disconnected)"; };

	document.getElementById("reset").onclick = function() {
		ws.send(JSON.stringify({command: "reset"}));
	};
})();
</script>
</body>
</html>
`
